package fidelity

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntheticfi/boxloan/internal/domain"
)

func newTestAdapter() *Adapter {
	return NewAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseAccounts(t *testing.T) {
	payload, err := os.ReadFile("testdata/accounts.json")
	require.NoError(t, err)

	accounts, err := newTestAdapter().Parse(payload)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	margin := accounts[0]
	assert.Equal(t, "X12345678", margin.AccountID)
	assert.False(t, margin.Snapshot.IsIra)
	assert.InDelta(t, 50000.0, margin.Snapshot.MarginDebitBalance, 1e-9)
	assert.InDelta(t, 120000.0, margin.Snapshot.WithdrawTotal, 1e-9)
	assert.InDelta(t, 100000.0, margin.Snapshot.WithdrawMargin, 1e-9)

	// Mutual fund and non-SPX option positions are filtered out.
	require.Len(t, margin.Legs, 4)
	exp := time.Date(2024, time.August, 30, 0, 0, 0, 0, time.Local)
	for _, leg := range margin.Legs {
		assert.Equal(t, exp, leg.Expiration)
	}
	assert.Equal(t, -1, margin.Legs[0].Quantity)
	assert.InDelta(t, 5000.0, margin.Legs[0].Strike, 1e-9)
	assert.Equal(t, domain.RightCall, margin.Legs[0].Right)
	assert.InDelta(t, -10335.0, margin.Legs[0].CostBasis, 1e-9)
	assert.Equal(t, domain.RightPut, margin.Legs[2].Right)
	assert.InDelta(t, 851.0, margin.Legs[2].CostBasis, 1e-9)

	ira := accounts[1]
	assert.Equal(t, "Z98765432", ira.AccountID)
	assert.True(t, ira.Snapshot.IsIra)
	assert.Empty(t, ira.Legs)
	// Net worth above market value means no margin debit.
	assert.Zero(t, ira.Snapshot.MarginDebitBalance)
	assert.Zero(t, ira.Snapshot.WithdrawMargin)
}

func TestParseSkipsMalformedAccount(t *testing.T) {
	payload := []byte(`{
		"BAD1": {
			"positions": [
				{"securityType": "Option", "securityDescription": "SPXW GARBAGE", "quantity": 1}
			]
		},
		"GOOD1": {
			"positions": [],
			"acctDetails": {"acctTypesIndDetail": {"isRetirement": false}}
		}
	}`)

	accounts, err := newTestAdapter().Parse(payload)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "GOOD1", accounts[0].AccountID)
}

func TestParseRejectsNonObjectPayload(t *testing.T) {
	_, err := newTestAdapter().Parse([]byte(`[1, 2, 3]`))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestParseStrike(t *testing.T) {
	strike, err := parseStrike("SPXW AUG 30 2024 $5,000 PUT")
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, strike, 1e-9)

	strike, err = parseStrike("SPX DEC 19 2025 $6,010 CALL")
	require.NoError(t, err)
	assert.InDelta(t, 6010.0, strike, 1e-9)

	_, err = parseStrike("SPXW AUG 30 2024")
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestParseExpiration(t *testing.T) {
	exp, err := parseExpiration("SPX SEPT 19 2025 $5,500 CALL")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.September, 19, 0, 0, 0, 0, time.Local), exp)

	_, err = parseExpiration("no date here")
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}
