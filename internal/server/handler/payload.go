package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/service"
)

// PayloadHandler accepts raw broker balance captures for ingestion.
type PayloadHandler struct {
	balances *service.BalanceService
	logger   *slog.Logger
}

// NewPayloadHandler creates a PayloadHandler.
func NewPayloadHandler(balances *service.BalanceService, logger *slog.Logger) *PayloadHandler {
	return &PayloadHandler{
		balances: balances,
		logger:   logger.With(slog.String("handler", "payload")),
	}
}

// IngestPayload accepts one raw broker payload, rebuilds the margin
// snapshots it describes, and returns them.
// POST /api/brokers/{broker}/payload
func (h *PayloadHandler) IngestPayload(w http.ResponseWriter, r *http.Request) {
	broker := domain.Broker(pathParam(r, "broker"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload")
		return
	}

	snaps, err := h.balances.IngestPayload(r.Context(), broker, payload)
	if err != nil {
		h.logger.WarnContext(r.Context(), "payload ingest failed",
			slog.String("broker", string(broker)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accounts": snaps})
}
