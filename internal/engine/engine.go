// Package engine sizes and prices SPX box spread orders. A box spread
// sells a synthetic long and buys a synthetic short at two strikes on the
// same expiration, collecting cash today against a fixed payoff of
// (strike2-strike1)*100 per contract at expiration.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/rates"
)

// Params are the sizing constants. They track the current SPX index level
// and exchange listing conventions and should be revisited as those move.
type Params struct {
	// ReferenceStrike is the fixed lower strike of every box.
	ReferenceStrike float64
	// MaxContractNotional caps the box size of a single contract.
	MaxContractNotional float64
	// FallbackRoundLot is the per-contract box size granularity used when
	// no live strike list is available.
	FallbackRoundLot float64
	// MinPeriodDays and MaxPeriodDays bound accepted loan durations.
	MinPeriodDays int
	MaxPeriodDays int
	// Tick is the minimum price increment for SPX combo orders.
	Tick float64
}

// DefaultParams returns the production sizing constants.
func DefaultParams() Params {
	return Params{
		ReferenceStrike:     5000,
		MaxContractNotional: 200_000,
		FallbackRoundLot:    500,
		MinPeriodDays:       25,
		MaxPeriodDays:       370,
		Tick:                0.05,
	}
}

// Engine computes box spread plans and limit prices against an expiration
// ladder and a rate curve.
type Engine struct {
	params Params
	cal    *datemath.Calendar
	logger *slog.Logger
}

// New creates an engine.
func New(params Params, cal *datemath.Calendar, logger *slog.Logger) *Engine {
	return &Engine{
		params: params,
		cal:    cal,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// PlanBorrow builds a borrow order plan. strikesByExpiration maps feed
// expiration keys to listed strikes; pass nil to force the fallback
// strike selection.
func (e *Engine) PlanBorrow(
	now time.Time,
	req domain.BorrowRequest,
	ladder *rates.Ladder,
	curve *rates.Curve,
	strikesByExpiration map[string][]float64,
) (domain.BoxSpreadPlan, error) {
	if err := req.Validate(); err != nil {
		return domain.BoxSpreadPlan{}, err
	}
	if req.PeriodInDays < e.params.MinPeriodDays || req.PeriodInDays > e.params.MaxPeriodDays {
		return domain.BoxSpreadPlan{}, fmt.Errorf("engine: period %d days outside [%d, %d]: %w",
			req.PeriodInDays, e.params.MinPeriodDays, e.params.MaxPeriodDays, domain.ErrInfeasible)
	}

	expiration, err := ladder.BestExpirationFor(now, req.PeriodInDays)
	if err != nil {
		return domain.BoxSpreadPlan{}, err
	}

	// The loan runs between the two settlement dates, not the trade and
	// expiration dates themselves.
	period := e.settlementPeriod(now, expiration)
	quote, err := curve.RateFor(period)
	if err != nil {
		return domain.BoxSpreadPlan{}, err
	}

	// Grow the borrow amount forward so the fixed payoff at expiration
	// covers principal plus interest.
	ideal := req.BorrowAmount * math.Pow(1+quote.Mid/360, float64(period))
	quantity := int(math.Ceil(ideal / e.params.MaxContractNotional))

	plan := domain.BoxSpreadPlan{
		ExpirationDate: expiration,
		StrikePrice1:   e.params.ReferenceStrike,
		Quantity:       quantity,
		Rate:           quote.Mid,
		PeriodDays:     period,
		IdealNotional:  ideal,
	}

	perContract := ideal / float64(quantity)
	if listed := strikesByExpiration[expiration.Format(datemath.FeedDateLayout)]; len(listed) > 0 {
		strike2, ok := e.nearestListedStrike(listed, perContract)
		if ok {
			plan.StrikePrice2 = strike2
			plan.Source = domain.PlanSourceLive
		}
	}
	if plan.Source != domain.PlanSourceLive {
		plan.StrikePrice2 = e.params.ReferenceStrike +
			math.Floor(perContract/e.params.FallbackRoundLot)*e.params.FallbackRoundLot/100
		plan.Source = domain.PlanSourceFallback
	}

	limit, err := e.limitPriceFor(quote.Mid, plan.StrikePrice2-plan.StrikePrice1, period)
	if err != nil {
		return domain.BoxSpreadPlan{}, err
	}
	plan.LimitPrice = limit

	e.logger.Info("borrow plan sized",
		slog.Float64("borrow_amount", req.BorrowAmount),
		slog.Int("requested_days", req.PeriodInDays),
		slog.Time("expiration", plan.ExpirationDate),
		slog.Int("period_days", period),
		slog.Int("quantity", quantity),
		slog.Float64("strike2", plan.StrikePrice2),
		slog.Float64("limit_price", plan.LimitPrice),
		slog.String("source", string(plan.Source)))

	return plan, nil
}

// nearestListedStrike picks the listed strike above the reference whose
// implied box size is nearest to the per-contract target. Ties keep the
// earliest candidate in list order.
func (e *Engine) nearestListedStrike(listed []float64, perContract float64) (float64, bool) {
	best, bestDiff := 0.0, math.Inf(1)
	for _, s := range listed {
		if s <= e.params.ReferenceStrike {
			continue
		}
		size := 100 * (s - e.params.ReferenceStrike)
		if diff := math.Abs(size - perContract); diff < bestDiff {
			best, bestDiff = s, diff
		}
	}
	return best, !math.IsInf(bestDiff, 1)
}

// LimitPrice computes the opening sell price for a box of the given strike
// width. periodForLookup selects the expiration and rate bucket;
// settlementPeriod discounts the payoff over the actual cash span.
func (e *Engine) LimitPrice(
	now time.Time,
	periodForLookup int,
	strikeWidth float64,
	settlementPeriod int,
	ladder *rates.Ladder,
	curve *rates.Curve,
) (float64, error) {
	expiration, err := ladder.BestExpirationFor(now, periodForLookup)
	if err != nil {
		return 0, err
	}
	quote, err := curve.RateFor(e.cal.DurationInSettlementDays(now, expiration))
	if err != nil {
		return 0, err
	}
	return e.limitPriceFor(quote.Mid, strikeWidth, settlementPeriod)
}

// limitPriceFor discounts the box payoff back over the loan period and
// rounds up to the next tick. Rounding up keeps the implied borrow rate at
// or below the curve quote.
func (e *Engine) limitPriceFor(mid, strikeWidth float64, settlementPeriod int) (float64, error) {
	if strikeWidth <= 0 {
		return 0, fmt.Errorf("engine: non-positive strike width %.2f: %w", strikeWidth, domain.ErrInfeasible)
	}
	payoff := strikeWidth * 100
	upfront := payoff / math.Pow(1+mid/360, float64(settlementPeriod))
	return e.roundUpToTick(upfront / 100), nil
}

func (e *Engine) roundUpToTick(price float64) float64 {
	ticks := 1 / e.params.Tick
	return math.Ceil(price*ticks) / ticks
}

// SettlementPeriod returns the loan days remaining between the settlement
// of a trade placed now and the settlement of the given expiration.
func (e *Engine) SettlementPeriod(now, expiration time.Time) int {
	return e.settlementPeriod(now, expiration)
}

// settlementPeriod measures the loan period between settlement dates. An
// expiration past the published holiday table still prices, but the
// settlement walk skips weekends only, so the result is flagged.
func (e *Engine) settlementPeriod(now, expiration time.Time) int {
	if !e.cal.Covers(expiration) {
		e.logger.Warn("expiration beyond published holiday calendar, settlement skips weekends only",
			slog.Time("expiration", expiration))
	}
	return e.cal.DurationInSettlementDays(now, expiration)
}

// ImpliedRate recovers the annualized borrow rate of an open box order
// from its limit price. Daily compounding over a 360 day year, measured
// over raw calendar days to expiration.
func (e *Engine) ImpliedRate(now, expiration time.Time, strike1, strike2, limitPrice float64) float64 {
	repay := math.Abs(strike2-strike1) * 100
	credit := limitPrice * 100
	days := abs(datemath.CalendarDays(datemath.Midnight(now), datemath.Midnight(expiration)))
	return (math.Pow(1+(repay-credit)/credit, 1/float64(days)) - 1) * 360
}

// BumpPrice lowers an unfilled order's limit price so its implied rate
// rises by one basis point, making the credit cheaper to the market. The
// result always drops by at least one tick from the previous price.
func (e *Engine) BumpPrice(now, expiration time.Time, strike1, strike2, limitPrice float64) float64 {
	repay := math.Abs(strike2-strike1) * 100
	days := abs(datemath.CalendarDays(datemath.Midnight(now), datemath.Midnight(expiration)))

	newRate := e.ImpliedRate(now, expiration, strike1, strike2, limitPrice) + 0.0001
	newPrice := repay / math.Pow(1+newRate/360, float64(days)) / 100
	rounded := e.roundUpToTick(newPrice)

	return math.Min(rounded, limitPrice-e.params.Tick)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
