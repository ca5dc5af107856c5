package handler

import (
	"log/slog"
	"net/http"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/feed"
)

// RatesHandler exposes the rate curve and expiration ladder currently in
// effect, plus a manual feed refresh trigger.
type RatesHandler struct {
	feed   *feed.Service
	logger *slog.Logger
}

// NewRatesHandler creates a RatesHandler.
func NewRatesHandler(feedSvc *feed.Service, logger *slog.Logger) *RatesHandler {
	return &RatesHandler{
		feed:   feedSvc,
		logger: logger.With(slog.String("handler", "rates")),
	}
}

// GetRates returns the active rate buckets and expiration ladder, flagging
// whether they came from a fresh feed snapshot or the built-in defaults.
// GET /api/rates
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	ref := h.feed.Reference(r.Context())

	buckets := ref.Curve.Buckets()
	rateRows := make([]map[string]any, len(buckets))
	for i, b := range buckets {
		rateRows[i] = map[string]any{
			"days": b.Days,
			"bid":  b.Quote.Bid,
			"ask":  b.Quote.Ask,
			"mid":  b.Quote.Mid,
		}
	}

	exps := ref.Ladder.Expirations()
	expRows := make([]string, len(exps))
	for i, exp := range exps {
		expRows[i] = exp.Format(datemath.DateLayout)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rates":       rateRows,
		"expirations": expRows,
		"from_feed":   ref.FromFeed,
	})
}

// RefreshFeed forces a contract feed fetch outside the normal staleness
// window and reports what it brought back.
// POST /api/feed/refresh
func (h *RatesHandler) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	snap, err := h.feed.Refresh(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "feed refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "feed refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expirations": len(snap.Expirations),
		"rates":       len(snap.Rates),
		"fetched_at":  snap.FetchedAt,
	})
}
