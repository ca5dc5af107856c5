package rates

import (
	"fmt"
	"sort"
	"time"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
)

// Ladder is the set of listed SPX expiration dates a box spread can be
// built on.
type Ladder struct {
	expirations []time.Time
}

// NewLadder builds a ladder from expiration dates, sorted ascending.
func NewLadder(expirations []time.Time) *Ladder {
	exps := make([]time.Time, len(expirations))
	for i, e := range expirations {
		exps[i] = datemath.Midnight(e)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })
	return &Ladder{expirations: exps}
}

// DefaultLadder returns the standard monthly SPX expiration cycle shipped
// with the binary, used when the contract feed is unavailable.
func DefaultLadder() *Ladder {
	d := func(y int, m time.Month, day int) time.Time {
		return time.Date(y, m, day, 0, 0, 0, 0, time.Local)
	}
	return NewLadder([]time.Time{
		d(2024, time.December, 20),
		d(2025, time.January, 17),
		d(2025, time.February, 21),
		d(2025, time.March, 21),
		d(2025, time.April, 17),
		d(2025, time.May, 16),
		d(2025, time.June, 20),
		d(2025, time.July, 18),
		d(2025, time.August, 15),
		d(2025, time.September, 19),
		d(2025, time.October, 17),
		d(2025, time.November, 21),
		d(2025, time.December, 19),
		d(2026, time.January, 16),
		d(2026, time.February, 20),
		d(2026, time.March, 20),
		d(2026, time.June, 18),
		d(2026, time.December, 18),
		d(2027, time.December, 17),
		d(2028, time.December, 15),
		d(2029, time.December, 21),
		d(2030, time.December, 20),
	})
}

// BestExpirationFor returns the nearest expiration at least periodInDays
// calendar days out from now. The loan never comes due early, so shorter
// expirations are excluded even when closer to the target. Returns
// ErrInfeasible when the ladder has nothing far enough out.
func (l *Ladder) BestExpirationFor(now time.Time, periodInDays int) (time.Time, error) {
	today := datemath.Midnight(now)
	for _, exp := range l.expirations {
		if datemath.CalendarDays(today, exp) >= periodInDays {
			return exp, nil
		}
	}
	return time.Time{}, fmt.Errorf("rates: no expiration covers %d days: %w", periodInDays, domain.ErrInfeasible)
}

// Expirations returns the ladder's dates in ascending order.
func (l *Ladder) Expirations() []time.Time {
	out := make([]time.Time, len(l.expirations))
	copy(out, l.expirations)
	return out
}

// Len returns the number of expirations on the ladder.
func (l *Ladder) Len() int { return len(l.expirations) }
