// Package fidelity maps Fidelity brokerage payloads into the normalized
// account model. Option descriptions look like
// "SPXW AUG 30 2024 $5,000 PUT" and both the expiration and the strike are
// recovered from that string.
package fidelity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/syntheticfi/boxloan/internal/domain"
)

var expirationPattern = regexp.MustCompile(`([A-Za-z]{3,4})\s(\d{1,2})\s(\d{4})`)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"SEPT": time.September, "OCT": time.October, "NOV": time.November,
	"DEC": time.December,
}

// Adapter parses Fidelity account payloads.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates a Fidelity adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{logger: logger.With(slog.String("component", "fidelity"))}
}

// Broker identifies the adapter.
func (a *Adapter) Broker() domain.Broker { return domain.BrokerFidelity }

// Parse decodes a raw payload into per-account data. A malformed account
// is logged and skipped so one bad capture does not hide the rest.
func (a *Adapter) Parse(payload []byte) ([]domain.AccountData, error) {
	var accounts accountsPayload
	if err := json.Unmarshal(payload, &accounts); err != nil {
		return nil, fmt.Errorf("fidelity: decode payload: %w", domain.ErrMalformedPayload)
	}

	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.AccountData, 0, len(ids))
	for _, id := range ids {
		acct, err := a.parseAccount(id, accounts[id])
		if err != nil {
			a.logger.Warn("skipping account",
				slog.String("account_id", id),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, acct)
	}
	return out, nil
}

func (a *Adapter) parseAccount(id string, detail accountDetail) (domain.AccountData, error) {
	legs := make([]domain.OptionLeg, 0, len(detail.Positions))
	for _, p := range detail.Positions {
		if p.SecurityType != "Option" || !strings.HasPrefix(p.SecurityDescription, "SPX") {
			continue
		}
		leg, err := parseLeg(p)
		if err != nil {
			return domain.AccountData{}, err
		}
		legs = append(legs, leg)
	}

	bal := detail.BrokerageAcctDetail.RecentBalanceDetail
	snap := domain.MarginSnapshot{
		Broker:      domain.BrokerFidelity,
		AccountID:   id,
		AccountName: id,
		IsIra:       detail.AcctDetails.AcctTypesIndDetail.IsRetirement,
	}
	if mv, nw := bal.AcctValDetail.MarketVal, bal.AcctValDetail.NetWorth; mv != nil && nw != nil {
		// Excess cash shows up as net worth above market value; only a
		// true debit counts.
		if debit := *mv - *nw; debit > 0 {
			snap.MarginDebitBalance = debit
		}
	}
	if cwm := bal.AvailableToWithdrawDetail.CashWithMargin; cwm != nil {
		snap.WithdrawTotal = *cwm
		if co := bal.AvailableToWithdrawDetail.CashOnly; co != nil {
			snap.WithdrawMargin = *cwm - *co
		}
	}

	return domain.AccountData{
		AccountID:   id,
		AccountName: id,
		Snapshot:    snap,
		Legs:        legs,
	}, nil
}

func parseLeg(p position) (domain.OptionLeg, error) {
	exp, err := parseExpiration(p.SecurityDescription)
	if err != nil {
		return domain.OptionLeg{}, err
	}
	strike, err := parseStrike(p.SecurityDescription)
	if err != nil {
		return domain.OptionLeg{}, err
	}

	right := domain.RightCall
	if strings.HasSuffix(p.SecurityDescription, "PUT") {
		right = domain.RightPut
	}

	return domain.OptionLeg{
		Symbol:      p.Symbol,
		Description: p.SecurityDescription,
		Expiration:  exp,
		Strike:      strike,
		Right:       right,
		Quantity:    p.Quantity,
		CostBasis:   p.CostBasisDetail.AvgCostPerShare * float64(p.Quantity) * 100,
	}, nil
}

func parseExpiration(description string) (time.Time, error) {
	m := expirationPattern.FindStringSubmatch(description)
	if m == nil {
		return time.Time{}, fmt.Errorf("fidelity: no expiration in %q: %w", description, domain.ErrMalformedPayload)
	}
	month, ok := months[strings.ToUpper(m[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("fidelity: bad month in %q: %w", description, domain.ErrMalformedPayload)
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("fidelity: bad day in %q: %w", description, domain.ErrMalformedPayload)
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("fidelity: bad year in %q: %w", description, domain.ErrMalformedPayload)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local), nil
}

// parseStrike pulls the dollar strike out of the description, e.g. the
// "$5,000" in "SPXW AUG 30 2024 $5,000 PUT".
func parseStrike(description string) (float64, error) {
	segments := strings.Split(description, " ")
	if len(segments) < 6 {
		return 0, fmt.Errorf("fidelity: short description %q: %w", description, domain.ErrMalformedPayload)
	}
	raw := strings.NewReplacer("$", "", ",", "").Replace(segments[4])
	strike, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("fidelity: bad strike in %q: %w", description, domain.ErrMalformedPayload)
	}
	return strike, nil
}
