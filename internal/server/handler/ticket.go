package handler

import (
	"log/slog"
	"net/http"

	"github.com/syntheticfi/boxloan/internal/service"
)

// TicketHandler serves stored order tickets and the price bump endpoint.
type TicketHandler struct {
	borrow *service.BorrowService
	repay  *service.RepayService
	logger *slog.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(borrow *service.BorrowService, repay *service.RepayService, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{
		borrow: borrow,
		repay:  repay,
		logger: logger.With(slog.String("handler", "ticket")),
	}
}

// GetTicket returns one stored order ticket.
// GET /api/tickets/{id}
func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.borrow.GetTicket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// BumpTicket reprices an unfilled ticket one basis point cheaper for the
// market and returns the replacement ticket.
// POST /api/tickets/{id}/bump
func (h *TicketHandler) BumpTicket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	ticket, err := h.repay.Bump(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "bump failed",
			slog.String("ticket_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}
