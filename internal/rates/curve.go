// Package rates holds the interest rate curve and the expiration ladder
// used to select and price SPX box spread contracts.
package rates

import (
	"fmt"
	"sort"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// Curve maps loan durations in days to observed box spread interest rates.
// Lookups snap to the nearest bucket so a sparse curve still answers any
// duration.
type Curve struct {
	days   []int
	quotes map[int]domain.RateQuote
}

// NewCurve builds a curve from duration buckets. An empty map yields a
// curve whose lookups fail with ErrNoRateData.
func NewCurve(buckets map[int]domain.RateQuote) *Curve {
	days := make([]int, 0, len(buckets))
	quotes := make(map[int]domain.RateQuote, len(buckets))
	for d, q := range buckets {
		days = append(days, d)
		quotes[d] = q
	}
	sort.Ints(days)
	return &Curve{days: days, quotes: quotes}
}

// DefaultCurve returns the static curve shipped with the binary, observed
// from executed SPX box trades. It backstops pricing when the contract feed
// is unavailable.
func DefaultCurve() *Curve {
	flat := func(r float64) domain.RateQuote {
		return domain.RateQuote{Bid: r, Ask: r, Mid: r}
	}
	return NewCurve(map[int]domain.RateQuote{
		30:   flat(0.044),
		112:  flat(0.044),
		322:  flat(0.042),
		500:  flat(0.042),
		800:  flat(0.043),
		1100: flat(0.042),
		1200: flat(0.042),
	})
}

// RateFor returns the quote of the bucket nearest to the given duration.
// When two buckets are equally near, the shorter one wins.
func (c *Curve) RateFor(durationDays int) (domain.RateQuote, error) {
	if len(c.days) == 0 {
		return domain.RateQuote{}, fmt.Errorf("rates: lookup %d days: %w", durationDays, domain.ErrNoRateData)
	}
	best := c.days[0]
	bestDiff := abs(best - durationDays)
	for _, d := range c.days[1:] {
		if diff := abs(d - durationDays); diff < bestDiff {
			best, bestDiff = d, diff
		}
	}
	return c.quotes[best], nil
}

// Buckets returns the curve's durations in ascending order with their
// quotes, for display.
func (c *Curve) Buckets() []BucketQuote {
	out := make([]BucketQuote, 0, len(c.days))
	for _, d := range c.days {
		out = append(out, BucketQuote{Days: d, Quote: c.quotes[d]})
	}
	return out
}

// BucketQuote is a single point on the curve.
type BucketQuote struct {
	Days  int              `json:"days"`
	Quote domain.RateQuote `json:"quote"`
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
