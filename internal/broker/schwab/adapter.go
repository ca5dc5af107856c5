// Package schwab maps Schwab brokerage payloads into the normalized
// account model. Box spread legs are the child option holdings Schwab
// itself tags with the "SBXS" margin strategy, under the "$SPX" position
// of the "Indices" holdings group. Option symbols look like
// "SPX 07/19/2024 5000.00 C".
package schwab

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
)

const (
	indicesGroupName = "Indices"
	spxSymbol        = "$SPX"
	boxStrategyName  = "SBXS"
)

// Adapter parses Schwab account payloads.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates a Schwab adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{logger: logger.With(slog.String("component", "schwab"))}
}

// Broker identifies the adapter.
func (a *Adapter) Broker() domain.Broker { return domain.BrokerSchwab }

// Parse decodes a raw payload, one entry per account. A malformed account
// is logged and skipped so one bad capture does not hide the rest.
func (a *Adapter) Parse(payload []byte) ([]domain.AccountData, error) {
	var balances []accountBalance
	if err := json.Unmarshal(payload, &balances); err != nil {
		return nil, fmt.Errorf("schwab: decode payload: %w", domain.ErrMalformedPayload)
	}

	out := make([]domain.AccountData, 0, len(balances))
	for _, bal := range balances {
		acct, err := a.parseAccount(bal)
		if err != nil {
			a.logger.Warn("skipping account",
				slog.String("account_id", bal.AccountID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, acct)
	}
	return out, nil
}

func (a *Adapter) parseAccount(bal accountBalance) (domain.AccountData, error) {
	if bal.AccountID == "" {
		return domain.AccountData{}, fmt.Errorf("schwab: entry without accountId: %w", domain.ErrMalformedPayload)
	}

	legs, err := parseBoxLegs(bal.Holdings)
	if err != nil {
		return domain.AccountData{}, err
	}

	name := bal.AccountNickname
	if name == "" {
		name = bal.AccountID
	}

	snap := domain.MarginSnapshot{
		Broker:             domain.BrokerSchwab,
		AccountID:          bal.AccountID,
		AccountName:        name,
		IsIra:              bal.Info.IsIra,
		OptionsLevel:       bal.OptionDetails.OptionsApprovalCode,
		MarginDebitBalance: bal.MarginsInfo.BalanceSubjectInterest,
		WithdrawTotal:      bal.FundsAvailable.WithdrawFunds.CashBorrowing,
		WithdrawMargin:     bal.FundsAvailable.WithdrawFunds.Borrowing,
	}

	return domain.AccountData{
		AccountID:   bal.AccountID,
		AccountName: name,
		Snapshot:    snap,
		Legs:        legs,
	}, nil
}

func parseBoxLegs(holdings []holdingsGroup) ([]domain.OptionLeg, error) {
	var indices *holdingsGroup
	for i := range holdings {
		if holdings[i].GroupName == indicesGroupName {
			indices = &holdings[i]
			break
		}
	}
	if indices == nil {
		return nil, nil
	}

	var legs []domain.OptionLeg
	for _, pos := range indices.Positions {
		if pos.SymbolDetail.Symbol != spxSymbol {
			continue
		}
		for _, child := range pos.ChildOptionHoldings {
			if len(child.MarginOptionStrategy) == 0 || child.MarginOptionStrategy[0].Name != boxStrategyName {
				continue
			}
			leg, err := parseLeg(child)
			if err != nil {
				return nil, err
			}
			legs = append(legs, leg)
		}
	}
	return legs, nil
}

func parseLeg(child optionHolding) (domain.OptionLeg, error) {
	symbol := child.SymbolDetail.Symbol
	strike, right, err := parseSymbol(symbol)
	if err != nil {
		return domain.OptionLeg{}, err
	}

	exp, err := time.ParseInLocation(datemath.DateLayout, child.MaturityDate, time.Local)
	if err != nil {
		return domain.OptionLeg{}, fmt.Errorf("schwab: bad maturity date %q: %w", child.MaturityDate, domain.ErrMalformedPayload)
	}

	return domain.OptionLeg{
		Symbol:      symbol,
		Description: child.SymbolDetail.Description,
		Expiration:  exp,
		Strike:      strike,
		Right:       right,
		Quantity:    child.Quantity,
		CostBasis:   child.CostDetail.CostBasisDetail.CostBasis,
		MarketValue: child.PriceDetail.MarketValue,
	}, nil
}

// parseSymbol pulls the strike and the right out of an option symbol such
// as "SPX 07/19/2024 5000.00 C".
func parseSymbol(symbol string) (float64, domain.OptionRight, error) {
	parts := strings.Split(symbol, " ")
	if len(parts) < 4 {
		return 0, "", fmt.Errorf("schwab: short option symbol %q: %w", symbol, domain.ErrMalformedPayload)
	}
	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, "", fmt.Errorf("schwab: bad strike in %q: %w", symbol, domain.ErrMalformedPayload)
	}
	right := domain.RightCall
	if parts[3] == "P" {
		right = domain.RightPut
	}
	return strike, right, nil
}
