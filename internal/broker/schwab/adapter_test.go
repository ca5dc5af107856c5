package schwab

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

func TestParseBalances(t *testing.T) {
	payload, err := os.ReadFile("testdata/balances.json")
	require.NoError(t, err)

	accounts, err := newTestAdapter().Parse(payload)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	margin := accounts[0]
	assert.Equal(t, "12345678", margin.AccountID)
	assert.Equal(t, "Individual Trading", margin.AccountName)
	assert.False(t, margin.Snapshot.IsIra)
	assert.Equal(t, "3", margin.Snapshot.OptionsLevel)
	assert.InDelta(t, 15000.0, margin.Snapshot.MarginDebitBalance, 1e-9)
	assert.InDelta(t, 80000.0, margin.Snapshot.WithdrawTotal, 1e-9)
	assert.InDelta(t, 60000.0, margin.Snapshot.WithdrawMargin, 1e-9)

	// Only the four SBXS-tagged children count; the naked call does not.
	require.Len(t, margin.Legs, 4)
	exp := time.Date(2024, time.July, 19, 0, 0, 0, 0, time.Local)
	leg := margin.Legs[0]
	assert.Equal(t, exp, leg.Expiration)
	assert.InDelta(t, 5000.0, leg.Strike, 1e-9)
	assert.Equal(t, domain.RightCall, leg.Right)
	assert.Equal(t, -1, leg.Quantity)
	assert.InDelta(t, -10335.0, leg.CostBasis, 1e-9)
	assert.InDelta(t, -10200.0, leg.MarketValue, 1e-9)
	assert.Equal(t, domain.RightPut, margin.Legs[2].Right)

	ira := accounts[1]
	assert.Equal(t, "87654321", ira.AccountID)
	assert.True(t, ira.Snapshot.IsIra)
	assert.Equal(t, "1", ira.Snapshot.OptionsLevel)
	assert.Empty(t, ira.Legs)
}

func TestParseSkipsAccountWithBadSymbol(t *testing.T) {
	payload := []byte(`[
		{
			"accountId": "A1",
			"holdings": [
				{
					"groupName": "Indices",
					"positions": [
						{
							"symbolDetail": {"symbol": "$SPX"},
							"childOptionHoldings": [
								{
									"quantity": 1,
									"maturityDate": "07/19/2024",
									"symbolDetail": {"symbol": "SPX"},
									"marginOptionStrategy": [{"name": "SBXS"}]
								}
							]
						}
					]
				}
			]
		},
		{"accountId": "A2", "holdings": []}
	]`)

	accounts, err := newTestAdapter().Parse(payload)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "A2", accounts[0].AccountID)
}

func TestParseRejectsNonArrayPayload(t *testing.T) {
	_, err := newTestAdapter().Parse([]byte(`{"accounts": []}`))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestParseSymbol(t *testing.T) {
	strike, right, err := parseSymbol("SPX 07/19/2024 5000.00 C")
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, strike, 1e-9)
	assert.Equal(t, domain.RightCall, right)

	strike, right, err = parseSymbol("SPX 12/19/2025 6010.00 P")
	require.NoError(t, err)
	assert.InDelta(t, 6010.0, strike, 1e-9)
	assert.Equal(t, domain.RightPut, right)

	_, _, err = parseSymbol("SPX 5000")
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}
