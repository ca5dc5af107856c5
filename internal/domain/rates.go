package domain

import "time"

// RateQuote is an annualized borrow rate quote for one days-to-expiration
// bucket. Quotes are immutable once fetched and refreshed at most daily.
type RateQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
	Mid float64 `json:"mid"`
}

// ContractSnapshot is one fetch of the contract reference feed: the listed
// strikes per expiration and, when the feed provides them, rate buckets.
// Staleness is judged against FetchedAt by wall clock.
type ContractSnapshot struct {
	// Expirations maps an expiration date in M/D/YYYY form to the strikes
	// listed for it, ascending.
	Expirations map[string][]float64 `json:"expirations"`
	// Rates maps a days-to-expiration bucket to its quote. Optional.
	Rates     map[int]RateQuote `json:"rates,omitempty"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Fresh reports whether the snapshot was fetched within maxAge of now.
func (s ContractSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	return !s.FetchedAt.IsZero() && now.Sub(s.FetchedAt) <= maxAge
}
