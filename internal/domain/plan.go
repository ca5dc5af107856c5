package domain

import "time"

// PlanSource records which strike-selection path produced a plan.
type PlanSource string

const (
	// PlanSourceLive means strike2 was chosen from the listed strikes in a
	// fresh contract snapshot.
	PlanSourceLive PlanSource = "live"
	// PlanSourceFallback means the contract feed was missing or stale and
	// strike2 was derived from the fixed rounding formula.
	PlanSourceFallback PlanSource = "fallback"
)

// OrderDirection distinguishes opening (sell the box, net credit) from
// closing (buy it back, net debit).
type OrderDirection string

const (
	DirectionCredit OrderDirection = "credit"
	DirectionDebit  OrderDirection = "debit"
)

// BoxSpreadPlan is the sized and priced box for one borrow or repay attempt.
// Plans are derived, never stored: each attempt recomputes from current
// reference data.
type BoxSpreadPlan struct {
	ExpirationDate time.Time  `json:"expiration_date"`
	StrikePrice1   float64    `json:"strike_price1"`
	StrikePrice2   float64    `json:"strike_price2"`
	Quantity       int        `json:"quantity"`
	LimitPrice     float64    `json:"limit_price"`
	Rate           float64    `json:"rate"`
	PeriodDays     int        `json:"period_days"`
	IdealNotional  float64    `json:"ideal_notional"`
	Source         PlanSource `json:"source"`
}

// BoxSize is the fixed payoff of the planned box at expiration.
func (p BoxSpreadPlan) BoxSize() float64 {
	return (p.StrikePrice2 - p.StrikePrice1) * 100 * float64(p.Quantity)
}

// OrderTicket is the tuple handed to the order-construction layer. It is the
// sole contract the engine owes downstream.
type OrderTicket struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	AccountName string         `json:"account_name"`
	Broker      Broker         `json:"broker"`
	Direction   OrderDirection `json:"direction"`

	ExpirationDate time.Time `json:"expiration_date"`
	StrikePrice1   float64   `json:"strike_price1"`
	StrikePrice2   float64   `json:"strike_price2"`
	Quantity       int       `json:"quantity"`
	LimitPrice     float64   `json:"limit_price"`

	// UpfrontCash is limit price x 100 x quantity: cash received on a
	// credit ticket, paid on a debit ticket.
	UpfrontCash float64 `json:"upfront_cash"`
	// RepaymentAmount is the fixed amount due at expiration.
	RepaymentAmount float64 `json:"repayment_amount"`
	// CostBasis carries the original open cost basis on repay tickets.
	CostBasis *float64 `json:"cost_basis,omitempty"`

	// ExceedsCreditLimit flags a borrow larger than the account's margin
	// borrowing capacity. Advisory only; the ticket is still produced.
	ExceedsCreditLimit bool `json:"exceeds_credit_limit"`

	Source    PlanSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}
