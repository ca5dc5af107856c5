package rates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntheticfi/boxloan/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurveRateFor(t *testing.T) {
	c := NewCurve(map[int]domain.RateQuote{
		30:  {Bid: 0.040, Ask: 0.042, Mid: 0.041},
		112: {Bid: 0.043, Ask: 0.045, Mid: 0.044},
		322: {Bid: 0.041, Ask: 0.043, Mid: 0.042},
	})

	tests := []struct {
		name string
		days int
		want float64
	}{
		{"exact bucket", 112, 0.044},
		{"below shortest", 5, 0.041},
		{"between snaps down", 60, 0.041},
		{"between snaps up", 100, 0.044},
		{"tie prefers shorter", 71, 0.041},
		{"beyond longest", 900, 0.042},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := c.RateFor(tc.days)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, q.Mid, 1e-12)
		})
	}
}

func TestCurveEmpty(t *testing.T) {
	_, err := NewCurve(nil).RateFor(90)
	assert.ErrorIs(t, err, domain.ErrNoRateData)
}

func TestDefaultCurve(t *testing.T) {
	c := DefaultCurve()
	q, err := c.RateFor(30)
	require.NoError(t, err)
	assert.InDelta(t, 0.044, q.Mid, 1e-12)

	buckets := c.Buckets()
	require.Len(t, buckets, 7)
	assert.Equal(t, 30, buckets[0].Days)
	assert.Equal(t, 1200, buckets[len(buckets)-1].Days)
}

func TestLadderBestExpirationFor(t *testing.T) {
	l := NewLadder([]time.Time{
		day(2025, time.September, 19),
		day(2025, time.October, 17),
		day(2025, time.December, 19),
	})
	now := day(2025, time.August, 12)

	// 09/19 is 38 days out, 10/17 is 66, 12/19 is 129.
	exp, err := l.BestExpirationFor(now, 30)
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 19), exp)

	// An expiration landing exactly on the target still qualifies.
	exp, err = l.BestExpirationFor(now, 38)
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 19), exp)

	exp, err = l.BestExpirationFor(now, 39)
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.October, 17), exp)

	_, err = l.BestExpirationFor(now, 200)
	assert.ErrorIs(t, err, domain.ErrInfeasible)
}

func TestLadderSortsInput(t *testing.T) {
	l := NewLadder([]time.Time{
		day(2025, time.December, 19),
		day(2025, time.September, 19),
	})
	exp, err := l.BestExpirationFor(day(2025, time.August, 12), 1)
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 19), exp)
}

func TestDefaultLadderOrdered(t *testing.T) {
	exps := DefaultLadder().Expirations()
	require.NotEmpty(t, exps)
	for i := 1; i < len(exps); i++ {
		assert.True(t, exps[i].After(exps[i-1]))
	}
}
