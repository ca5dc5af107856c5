package domain

import (
	"fmt"
	"time"
)

// BorrowRequest is a request to raise cash by selling a box spread.
type BorrowRequest struct {
	// BorrowAmount is the cash the account holder wants to receive today,
	// in dollars.
	BorrowAmount float64 `json:"borrow_amount"`
	// PeriodInDays is the requested loan horizon in calendar days. The
	// engine picks the nearest listed expiration at least this far out.
	PeriodInDays int `json:"period_in_days"`
}

// Validate rejects structurally invalid requests. Period feasibility against
// the expiration ladder is the engine's job, not ours.
func (r BorrowRequest) Validate() error {
	if r.BorrowAmount <= 0 {
		return fmt.Errorf("borrow amount must be positive, got %.2f: %w", r.BorrowAmount, ErrInfeasible)
	}
	if r.PeriodInDays <= 0 {
		return fmt.Errorf("period must be positive, got %d: %w", r.PeriodInDays, ErrInfeasible)
	}
	return nil
}

// RepayRequest is a request to unwind an existing box spread early.
type RepayRequest struct {
	ExpirationDate time.Time `json:"expiration_date"`
	StrikePrice1   float64   `json:"strike_price1"`
	StrikePrice2   float64   `json:"strike_price2"`
	Quantity       int       `json:"quantity"`
	// CostBasis is the signed cost basis from the open. A net credit
	// received at open shows as a negative number.
	CostBasis float64 `json:"cost_basis"`
}

// Validate rejects structurally invalid repay requests.
func (r RepayRequest) Validate() error {
	if r.ExpirationDate.IsZero() {
		return fmt.Errorf("expiration date is required: %w", ErrInfeasible)
	}
	if r.StrikePrice1 >= r.StrikePrice2 {
		return fmt.Errorf("strike1 %.2f must be below strike2 %.2f: %w", r.StrikePrice1, r.StrikePrice2, ErrInfeasible)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d: %w", r.Quantity, ErrInfeasible)
	}
	return nil
}
