// Package datemath implements the settlement-date arithmetic used to size
// and price box spread loans. Settlement follows the T+1 convention for
// both equity option trades and cash-settled index option expirations,
// skipping weekends and US bond market holidays.
package datemath

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"
)

//go:embed holidays.json
var holidaysJSON []byte

// DateLayout is the wire format for dates in broker payloads.
const DateLayout = "01/02/2006"

// FeedDateLayout is DateLayout without zero padding, used for the keys of
// the contract feed's strike lists.
const FeedDateLayout = "1/2/2006"

// Calendar tracks market holidays and answers business-day questions.
// The zero value is not usable; construct with NewCalendar.
type Calendar struct {
	holidays map[string]struct{}
	minYear  int
	maxYear  int
}

// NewCalendar builds a calendar from the embedded holiday table.
func NewCalendar() (*Calendar, error) {
	var dates []string
	if err := json.Unmarshal(holidaysJSON, &dates); err != nil {
		return nil, fmt.Errorf("datemath: decode holiday table: %w", err)
	}
	c := &Calendar{holidays: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		t, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("datemath: parse holiday %q: %w", d, err)
		}
		c.holidays[d] = struct{}{}
		if y := t.Year(); c.minYear == 0 || y < c.minYear {
			c.minYear = y
		}
		if y := t.Year(); y > c.maxYear {
			c.maxYear = y
		}
	}
	return c, nil
}

// Covers reports whether the holiday table extends through the given date's
// year. Dates past coverage still settle, but only weekends are skipped.
func (c *Calendar) Covers(date time.Time) bool {
	return date.Year() >= c.minYear && date.Year() <= c.maxYear
}

// IsBusinessDay reports whether date is neither a weekend nor a holiday.
func (c *Calendar) IsBusinessDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[date.Format(DateLayout)]
	return !holiday
}

// AddBusinessDays advances from start by the given number of business days,
// skipping weekends and holidays. A non-positive count returns start.
func (c *Calendar) AddBusinessDays(start time.Time, days int) time.Time {
	cur := Midnight(start)
	for days > 0 {
		cur = cur.AddDate(0, 0, 1)
		if c.IsBusinessDay(cur) {
			days--
		}
	}
	return cur
}

// SettlementDate returns the date cash actually moves for a trade or
// expiration occurring on tradeDate, using the standard T+1 convention.
func (c *Calendar) SettlementDate(tradeDate time.Time) time.Time {
	return c.AddBusinessDays(tradeDate, 1)
}

// DurationInSettlementDays returns the loan duration in calendar days
// between the settlement of a trade placed now and the settlement of an
// option expiring on expiration. Both endpoints are settlement dates, so a
// trade and expiration separated by a weekend still measure the true
// cash-out to cash-in span.
func (c *Calendar) DurationInSettlementDays(now, expiration time.Time) int {
	a := c.SettlementDate(Midnight(now))
	b := c.SettlementDate(Midnight(expiration))
	d := CalendarDays(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// Midnight truncates t to the start of its day in local time.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CalendarDays returns the whole number of days from a to b, rounding the
// raw hour difference to absorb daylight saving shifts.
func CalendarDays(a, b time.Time) int {
	hours := b.Sub(a).Hours()
	days := hours / 24
	if days >= 0 {
		return int(days + 0.5)
	}
	return -int(-days + 0.5)
}
