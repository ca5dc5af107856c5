package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntheticfi/boxloan/internal/cache/memory"
	"github.com/syntheticfi/boxloan/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientFetchContracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chrome/contracts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"expirations": {"12/19/2025": [5000, 6000, 6010], "6/18/2026": [5000, 6500]},
			"rates": {"30": {"bid": 0.043, "ask": 0.045, "mid": 0.044}, "322": {"bid": 0.041, "ask": 0.043, "mid": 0.042}}
		}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, "test-token").FetchContracts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []float64{5000, 6000, 6010}, snap.Expirations["12/19/2025"])
	assert.InDelta(t, 0.044, snap.Rates[30].Mid, 1e-12)
	assert.InDelta(t, 0.042, snap.Rates[322].Mid, 1e-12)
	assert.WithinDuration(t, time.Now(), snap.FetchedAt, time.Minute)
}

func TestClientFetchContractsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").FetchContracts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type stubFetcher struct {
	snap  domain.ContractSnapshot
	err   error
	calls int
}

func (f *stubFetcher) FetchContracts(context.Context) (domain.ContractSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

func freshSnapshot(at time.Time) domain.ContractSnapshot {
	return domain.ContractSnapshot{
		Expirations: map[string][]float64{"12/19/2025": {5000, 6000}},
		Rates:       map[int]domain.RateQuote{112: {Bid: 0.044, Ask: 0.044, Mid: 0.044}},
		FetchedAt:   at,
	}
}

func TestServiceCurrentUsesFreshCache(t *testing.T) {
	now := time.Date(2025, time.August, 12, 10, 0, 0, 0, time.UTC)
	cache := memory.NewContractCache()
	require.NoError(t, cache.Set(context.Background(), freshSnapshot(now.Add(-time.Hour))))

	fetcher := &stubFetcher{}
	svc := NewService(fetcher, cache, 0, discardLogger())
	svc.now = func() time.Time { return now }

	snap, ok := svc.Current(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, snap.Expirations)
	assert.Zero(t, fetcher.calls)
}

func TestServiceCurrentRefetchesStaleCache(t *testing.T) {
	now := time.Date(2025, time.August, 12, 10, 0, 0, 0, time.UTC)
	cache := memory.NewContractCache()
	require.NoError(t, cache.Set(context.Background(), freshSnapshot(now.Add(-25*time.Hour))))

	fetcher := &stubFetcher{snap: freshSnapshot(now)}
	svc := NewService(fetcher, cache, 0, discardLogger())
	svc.now = func() time.Time { return now }

	snap, ok := svc.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, now, snap.FetchedAt)

	// The refreshed snapshot replaced the stale one.
	cached, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, cached.FetchedAt)
}

func TestServiceCurrentFallsBackWhenFetchFails(t *testing.T) {
	svc := NewService(&stubFetcher{err: errors.New("connection refused")}, memory.NewContractCache(), 0, discardLogger())

	_, ok := svc.Current(context.Background())
	assert.False(t, ok)
}

func TestServiceReference(t *testing.T) {
	now := time.Date(2025, time.August, 12, 10, 0, 0, 0, time.UTC)
	cache := memory.NewContractCache()
	require.NoError(t, cache.Set(context.Background(), freshSnapshot(now)))

	svc := NewService(&stubFetcher{}, cache, 0, discardLogger())
	svc.now = func() time.Time { return now }

	ref := svc.Reference(context.Background())
	require.True(t, ref.FromFeed)
	require.NotNil(t, ref.Strikes)

	// The ladder is restricted to the feed's single listed expiration.
	assert.Equal(t, 1, ref.Ladder.Len())
	exp, err := ref.Ladder.BestExpirationFor(now, 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.December, 19, 0, 0, 0, 0, time.Local), exp)

	q, err := ref.Curve.RateFor(500)
	require.NoError(t, err)
	assert.InDelta(t, 0.044, q.Mid, 1e-12)
}

func TestServiceReferenceFallback(t *testing.T) {
	svc := NewService(&stubFetcher{err: errors.New("down")}, memory.NewContractCache(), 0, discardLogger())

	ref := svc.Reference(context.Background())
	assert.False(t, ref.FromFeed)
	assert.Nil(t, ref.Strikes)
	assert.Positive(t, ref.Ladder.Len())
}
