package engine

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/rates"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cal, err := datemath.NewCalendar()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultParams(), cal, logger)
}

func flatCurve(days int, mid float64) *rates.Curve {
	return rates.NewCurve(map[int]domain.RateQuote{
		days: {Bid: mid, Ask: mid, Mid: mid},
	})
}

// Tue 08/12/2025 settles Wed 08/13. Expiration Tue 12/02/2025 settles Wed
// 12/03, which is 112 calendar days after 08/13.
var (
	tradeDay   = time.Date(2025, time.August, 12, 0, 0, 0, 0, time.UTC)
	expiration = time.Date(2025, time.December, 2, 0, 0, 0, 0, time.UTC)
)

func TestPlanBorrowFallback(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	plan, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	}, ladder, curve, nil)
	require.NoError(t, err)

	assert.Equal(t, expiration, plan.ExpirationDate)
	assert.Equal(t, 112, plan.PeriodDays)
	assert.InDelta(t, 0.044, plan.Rate, 1e-12)
	assert.InDelta(t, 101378.2, plan.IdealNotional, 0.5)
	assert.Equal(t, 1, plan.Quantity)
	assert.Equal(t, domain.PlanSourceFallback, plan.Source)
	assert.InDelta(t, 5000.0, plan.StrikePrice1, 1e-12)

	// floor(101378/500) = 202, so the per-contract box rounds down to
	// $101,000 and the upper strike lands at 6010, not 6000.
	assert.InDelta(t, 6010.0, plan.StrikePrice2, 1e-12)
	assert.InDelta(t, 996.30, plan.LimitPrice, 1e-9)
	assert.InDelta(t, 101_000.0, plan.BoxSize(), 1e-6)
}

func TestPlanBorrowLiveStrikes(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)
	req := domain.BorrowRequest{BorrowAmount: 100_000, PeriodInDays: 90}

	strikes := map[string][]float64{
		"12/2/2025": {4800, 5000, 6000, 6010, 6050},
	}
	plan, err := e.PlanBorrow(tradeDay, req, ladder, curve, strikes)
	require.NoError(t, err)

	// Ideal per-contract box is ~$101,378; the $101,000 box at strike
	// 6010 is nearest. Strikes at or below the reference are ignored.
	assert.Equal(t, domain.PlanSourceLive, plan.Source)
	assert.InDelta(t, 6010.0, plan.StrikePrice2, 1e-12)
	assert.InDelta(t, 996.30, plan.LimitPrice, 1e-9)
}

func TestPlanBorrowLiveStrikesNearestBelow(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	plan, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	}, ladder, curve, map[string][]float64{"12/2/2025": {6000}})
	require.NoError(t, err)

	assert.Equal(t, domain.PlanSourceLive, plan.Source)
	assert.InDelta(t, 6000.0, plan.StrikePrice2, 1e-12)
	assert.InDelta(t, 986.45, plan.LimitPrice, 1e-9)
}

func TestPlanBorrowLiveTieKeepsFirst(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	// Zero rate makes the ideal notional exactly the borrow amount, so
	// the $100,000 and $101,000 boxes are equidistant from $100,500.
	curve := flatCurve(112, 0)

	plan, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_500,
		PeriodInDays: 90,
	}, ladder, curve, map[string][]float64{"12/2/2025": {6000, 6010}})
	require.NoError(t, err)

	assert.InDelta(t, 6000.0, plan.StrikePrice2, 1e-12)
}

func TestPlanBorrowNoListedStrikesAboveReference(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	plan, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	}, ladder, curve, map[string][]float64{"12/2/2025": {4500, 5000}})
	require.NoError(t, err)

	assert.Equal(t, domain.PlanSourceFallback, plan.Source)
	assert.InDelta(t, 6010.0, plan.StrikePrice2, 1e-12)
}

func TestPlanBorrowPeriodBounds(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.DefaultLadder()
	curve := rates.DefaultCurve()

	for _, days := range []int{1, 24, 371, 4000} {
		_, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
			BorrowAmount: 100_000,
			PeriodInDays: days,
		}, ladder, curve, nil)
		assert.ErrorIs(t, err, domain.ErrInfeasible, "period %d", days)
	}
}

func TestPlanBorrowRejectsBadRequests(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.DefaultLadder()
	curve := rates.DefaultCurve()

	_, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{BorrowAmount: -5, PeriodInDays: 90}, ladder, curve, nil)
	assert.ErrorIs(t, err, domain.ErrInfeasible)

	_, err = e.PlanBorrow(tradeDay, domain.BorrowRequest{BorrowAmount: 100_000, PeriodInDays: 0}, ladder, curve, nil)
	assert.ErrorIs(t, err, domain.ErrInfeasible)
}

func TestPlanBorrowLadderExhausted(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	_, err := e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 180,
	}, ladder, curve, nil)
	assert.ErrorIs(t, err, domain.ErrInfeasible)
}

func TestLimitPrice(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	price, err := e.LimitPrice(tradeDay, 112, 1010, 112, ladder, curve)
	require.NoError(t, err)
	assert.InDelta(t, 996.30, price, 1e-9)

	_, err = e.LimitPrice(tradeDay, 112, 0, 112, ladder, curve)
	assert.ErrorIs(t, err, domain.ErrInfeasible)
}

func TestLimitPriceRepay(t *testing.T) {
	e := newTestEngine(t)
	ladder := rates.NewLadder([]time.Time{expiration})
	curve := flatCurve(112, 0.044)

	// A $10,000 box bought back 20 settlement days before expiration:
	// 10000/(1+0.044/360)^20 = 9975.59, per contract 99.7559, up-tick
	// to 99.80.
	price, err := e.LimitPrice(tradeDay, 20, 100, 20, ladder, curve)
	require.NoError(t, err)
	assert.InDelta(t, 99.80, price, 1e-9)
}

func TestImpliedRate(t *testing.T) {
	e := newTestEngine(t)

	rate := e.ImpliedRate(tradeDay, expiration, 5000, 6010, 996.30)
	assert.InDelta(t, 0.0439, rate, 5e-5)
}

func TestBumpPrice(t *testing.T) {
	e := newTestEngine(t)

	// One basis point barely moves a 112 day discount factor, so the
	// recomputed price rounds back up to the original and the one tick
	// floor takes over.
	got := e.BumpPrice(tradeDay, expiration, 5000, 6010, 996.30)
	assert.InDelta(t, 996.25, got, 1e-9)

	// Successive bumps keep walking the price down.
	again := e.BumpPrice(tradeDay, expiration, 5000, 6010, got)
	assert.Less(t, again, got)
}

func TestSettlementPeriodBeyondCalendarWarns(t *testing.T) {
	cal, err := datemath.NewCalendar()
	require.NoError(t, err)

	var buf bytes.Buffer
	e := New(DefaultParams(), cal, slog.New(slog.NewTextHandler(&buf, nil)))

	// Dec 2028 is past the published holiday table, so the settlement
	// walk can only skip weekends. The period still computes.
	farOut := time.Date(2028, time.December, 15, 0, 0, 0, 0, time.UTC)
	period := e.SettlementPeriod(tradeDay, farOut)
	assert.Greater(t, period, 1190)
	assert.Contains(t, buf.String(), "beyond published holiday calendar")

	// A covered expiration stays quiet.
	buf.Reset()
	e.SettlementPeriod(tradeDay, expiration)
	assert.Empty(t, buf.String())
}

func TestPlanBorrowBeyondCalendarWarns(t *testing.T) {
	cal, err := datemath.NewCalendar()
	require.NoError(t, err)

	var buf bytes.Buffer
	e := New(DefaultParams(), cal, slog.New(slog.NewTextHandler(&buf, nil)))

	farOut := time.Date(2028, time.December, 15, 0, 0, 0, 0, time.UTC)
	ladder := rates.NewLadder([]time.Time{farOut})
	curve := flatCurve(1200, 0.05)

	_, err = e.PlanBorrow(tradeDay, domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 360,
	}, ladder, curve, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "beyond published holiday calendar")
}
