package handler

import (
	"log/slog"
	"net/http"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/service"
)

// AccountHandler serves account snapshots and the per-account borrow and
// repay planning endpoints.
type AccountHandler struct {
	balances *service.BalanceService
	borrow   *service.BorrowService
	repay    *service.RepayService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(balances *service.BalanceService, borrow *service.BorrowService, repay *service.RepayService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		balances: balances,
		borrow:   borrow,
		repay:    repay,
		logger:   logger.With(slog.String("handler", "account")),
	}
}

// ListAccounts returns the latest margin snapshot of every known account,
// borrowing-capable accounts first.
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.balances.ListAccounts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list accounts failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": snaps})
}

// borrowBody is the borrow planning request body.
type borrowBody struct {
	Broker       domain.Broker `json:"broker"`
	BorrowAmount float64       `json:"borrow_amount"`
	PeriodInDays int           `json:"period_in_days"`
}

// PlanBorrow sizes and prices a borrow for one account and returns the
// generated order ticket.
// POST /api/accounts/{id}/borrow
func (h *AccountHandler) PlanBorrow(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")

	var body borrowBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ticket, err := h.borrow.PlanBorrow(r.Context(), body.Broker, accountID, domain.BorrowRequest{
		BorrowAmount: body.BorrowAmount,
		PeriodInDays: body.PeriodInDays,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "borrow planning failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// repayBody is the repay planning request body.
type repayBody struct {
	Broker domain.Broker `json:"broker"`
	domain.RepayRequest
}

// PlanRepay prices the early buy-back of an open box and returns the
// generated order ticket.
// POST /api/accounts/{id}/repay
func (h *AccountHandler) PlanRepay(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")

	var body repayBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ticket, err := h.repay.PlanRepay(r.Context(), body.Broker, accountID, body.RepayRequest)
	if err != nil {
		h.logger.WarnContext(r.Context(), "repay planning failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// ListTickets returns an account's recent order tickets, newest first.
// GET /api/accounts/{id}/tickets
func (h *AccountHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "id")

	tickets, err := h.borrow.ListTickets(r.Context(), accountID, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list tickets failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}
