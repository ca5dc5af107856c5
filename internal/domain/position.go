package domain

import "time"

// Broker identifies which brokerage front-end a payload came from.
type Broker string

const (
	BrokerFidelity Broker = "fidelity"
	BrokerSchwab   Broker = "schwab"
)

// OptionRight is the option type of a single leg.
type OptionRight string

const (
	RightCall OptionRight = "call"
	RightPut  OptionRight = "put"
)

// OptionLeg is one index-option position normalized out of a broker payload.
type OptionLeg struct {
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Expiration  time.Time   `json:"expiration"`
	Strike      float64     `json:"strike"`
	Right       OptionRight `json:"right"`
	// Quantity is signed: positive long, negative short.
	Quantity int `json:"quantity"`
	// CostBasis is the total signed dollar cost basis of the leg.
	CostBasis   float64 `json:"cost_basis"`
	MarketValue float64 `json:"market_value"`
}

// BoxSpreadGroup is a set of four option legs recognized as one box spread.
// Groups are rebuilt from raw positions on every balance refresh and never
// mutated in place.
type BoxSpreadGroup struct {
	ExpirationDate time.Time   `json:"expiration_date"`
	Legs           []OptionLeg `json:"legs"`
	StrikePrice1   float64     `json:"strike_price1"`
	StrikePrice2   float64     `json:"strike_price2"`
	// Quantity is the absolute per-leg contract count.
	Quantity int `json:"quantity"`
	// CostBasisSum is the summed signed cost basis of all four legs. For a
	// box opened for a net credit this is negative.
	CostBasisSum float64 `json:"cost_basis_sum"`
	// BoxSize is the fixed amount due at expiration:
	// (strike2 - strike1) x 100 x quantity.
	BoxSize float64 `json:"box_size"`
}

// MarginSnapshot is the normalized per-account margin picture, rebuilt from
// the broker-specific balance payload on each refresh.
type MarginSnapshot struct {
	Broker      Broker `json:"broker"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	IsIra       bool   `json:"is_ira"`
	// OptionsLevel is the broker's option approval code where reported
	// (Schwab only; empty for Fidelity).
	OptionsLevel string `json:"options_level,omitempty"`

	// MarginDebitBalance is the amount currently owed to the broker.
	MarginDebitBalance float64 `json:"margin_debit_balance"`
	// WithdrawTotal is total withdrawable cash including margin borrowing.
	WithdrawTotal float64 `json:"withdraw_total"`
	// WithdrawMargin is the portion of withdrawable cash attributable to
	// margin borrowing capacity rather than settled cash.
	WithdrawMargin float64 `json:"withdraw_margin"`
	// BoxSpreadDebitBalance is the amount owed if all detected boxes were
	// unwound at cost: the negated sum of group cost bases.
	BoxSpreadDebitBalance float64 `json:"box_spread_debit_balance"`

	Groups      []BoxSpreadGroup `json:"groups"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// AccountData is one account's normalized state as produced by a broker
// adapter: the margin snapshot fields the broker reports directly, plus the
// raw option legs awaiting box grouping.
type AccountData struct {
	AccountID   string
	AccountName string
	Snapshot    MarginSnapshot
	Legs        []OptionLeg
}

// BrokerAdapter maps one broker's raw balance/holdings payload into
// normalized account data. Implementations must isolate per-account
// failures: a malformed account is skipped, not fatal to the batch.
type BrokerAdapter interface {
	Broker() Broker
	Parse(payload []byte) ([]AccountData, error)
}
