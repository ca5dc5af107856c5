package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/rates"
)

// DefaultMaxAge is how long a fetched contract snapshot stays usable.
const DefaultMaxAge = 24 * time.Hour

// Fetcher retrieves a fresh contract snapshot from the feed server.
type Fetcher interface {
	FetchContracts(ctx context.Context) (domain.ContractSnapshot, error)
}

// Reference is the resolved pricing input set for one computation.
// FromFeed is false when the snapshot was missing or stale and the built-in
// defaults are in play, which also forces the coarse strike fallback.
type Reference struct {
	Ladder   *rates.Ladder
	Curve    *rates.Curve
	Strikes  map[string][]float64
	FromFeed bool
}

// Service serves contract snapshots through a cache, fetching from the
// feed at most once per staleness window.
type Service struct {
	fetcher Fetcher
	cache   domain.ContractCache
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a contract feed service. maxAge <= 0 uses
// DefaultMaxAge.
func NewService(fetcher Fetcher, cache domain.ContractCache, maxAge time.Duration, logger *slog.Logger) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		maxAge:  maxAge,
		logger:  logger.With(slog.String("component", "feed")),
		now:     time.Now,
	}
}

// Current returns a usable contract snapshot, fetching a fresh one when
// the cached copy is missing or stale. The second result is false when no
// usable snapshot could be obtained; callers fall back to built-in
// reference data rather than failing.
func (s *Service) Current(ctx context.Context) (domain.ContractSnapshot, bool) {
	snap, err := s.cache.Get(ctx)
	switch {
	case err == nil && snap.Fresh(s.now(), s.maxAge):
		return snap, true
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		s.logger.Warn("contract cache read failed", slog.String("error", err.Error()))
	}

	fetched, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Warn("contract fetch failed, using fallback data", slog.String("error", err.Error()))
		return domain.ContractSnapshot{}, false
	}
	return fetched, true
}

// Refresh fetches from the feed unconditionally and stores the result.
func (s *Service) Refresh(ctx context.Context) (domain.ContractSnapshot, error) {
	snap, err := s.fetcher.FetchContracts(ctx)
	if err != nil {
		return domain.ContractSnapshot{}, err
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("contract cache write failed", slog.String("error", err.Error()))
	}
	s.logger.Info("contract snapshot refreshed",
		slog.Int("expirations", len(snap.Expirations)),
		slog.Int("rate_buckets", len(snap.Rates)))
	return snap, nil
}

// Reference resolves the ladder, curve, and strike lists for a pricing
// run. With a fresh snapshot the ladder holds only feed-listed expirations
// and the curve carries the served buckets; otherwise both fall back to
// the built-in tables and Strikes is nil.
func (s *Service) Reference(ctx context.Context) Reference {
	snap, ok := s.Current(ctx)
	if !ok {
		return Reference{Ladder: rates.DefaultLadder(), Curve: rates.DefaultCurve()}
	}

	ref := Reference{
		Ladder:   rates.DefaultLadder(),
		Curve:    rates.DefaultCurve(),
		Strikes:  snap.Expirations,
		FromFeed: true,
	}
	if exps := parseExpirations(snap.Expirations, s.logger); len(exps) > 0 {
		ref.Ladder = rates.NewLadder(exps)
	}
	if len(snap.Rates) > 0 {
		ref.Curve = rates.NewCurve(snap.Rates)
	}
	return ref
}

func parseExpirations(strikes map[string][]float64, logger *slog.Logger) []time.Time {
	out := make([]time.Time, 0, len(strikes))
	for key := range strikes {
		exp, err := time.ParseInLocation(datemath.FeedDateLayout, key, time.Local)
		if err != nil {
			logger.Warn("skipping unparseable feed expiration", slog.String("key", key))
			continue
		}
		out = append(out, datemath.Midnight(exp))
	}
	return out
}
