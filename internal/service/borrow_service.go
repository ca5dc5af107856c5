package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/engine"
	"github.com/syntheticfi/boxloan/internal/feed"
)

// referenceSource resolves the pricing inputs for one computation.
type referenceSource interface {
	Reference(ctx context.Context) feed.Reference
}

// BorrowService turns borrow requests into priced order tickets.
type BorrowService struct {
	engine    *engine.Engine
	refs      referenceSource
	snapshots domain.SnapshotStore
	tickets   domain.TicketStore
	notifier  Notifier
	bcast     Broadcaster
	logger    *slog.Logger
	now       func() time.Time
}

// NewBorrowService creates a BorrowService. notifier and bcast may be nil.
func NewBorrowService(
	eng *engine.Engine,
	refs referenceSource,
	snapshots domain.SnapshotStore,
	tickets domain.TicketStore,
	notifier Notifier,
	bcast Broadcaster,
	logger *slog.Logger,
) *BorrowService {
	return &BorrowService{
		engine:    eng,
		refs:      refs,
		snapshots: snapshots,
		tickets:   tickets,
		notifier:  notifier,
		bcast:     bcast,
		logger:    logger.With(slog.String("component", "borrow_service")),
		now:       time.Now,
	}
}

// PlanBorrow sizes and prices a borrow for one account and records the
// resulting credit ticket. A request above the account's remaining margin
// borrowing capacity is still ticketed but flagged.
func (s *BorrowService) PlanBorrow(ctx context.Context, broker domain.Broker, accountID string, req domain.BorrowRequest) (domain.OrderTicket, error) {
	now := s.now()
	ref := s.refs.Reference(ctx)

	plan, err := s.engine.PlanBorrow(now, req, ref.Ladder, ref.Curve, ref.Strikes)
	if err != nil {
		return domain.OrderTicket{}, fmt.Errorf("borrow_service: plan for %s/%s: %w", broker, accountID, err)
	}

	ticket := domain.OrderTicket{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		AccountName:     accountID,
		Broker:          broker,
		Direction:       domain.DirectionCredit,
		ExpirationDate:  plan.ExpirationDate,
		StrikePrice1:    plan.StrikePrice1,
		StrikePrice2:    plan.StrikePrice2,
		Quantity:        plan.Quantity,
		LimitPrice:      plan.LimitPrice,
		UpfrontCash:     plan.LimitPrice * 100 * float64(plan.Quantity),
		RepaymentAmount: plan.BoxSize(),
		Source:          plan.Source,
		CreatedAt:       now,
	}

	snap, err := s.snapshots.GetByAccount(ctx, broker, accountID)
	switch {
	case err == nil:
		ticket.AccountName = snap.AccountName
		// Capacity is what margin can still lend plus what is already
		// drawn.
		if req.BorrowAmount > snap.WithdrawMargin+snap.MarginDebitBalance {
			ticket.ExceedsCreditLimit = true
		}
	case errors.Is(err, domain.ErrNotFound):
		s.logger.DebugContext(ctx, "no snapshot for credit limit check",
			slog.String("broker", string(broker)),
			slog.String("account_id", accountID),
		)
	default:
		return domain.OrderTicket{}, fmt.Errorf("borrow_service: load snapshot %s/%s: %w", broker, accountID, err)
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return domain.OrderTicket{}, fmt.Errorf("borrow_service: store ticket: %w", err)
	}

	s.logger.InfoContext(ctx, "borrow ticket created",
		slog.String("ticket_id", ticket.ID),
		slog.String("account_id", accountID),
		slog.Float64("borrow_amount", req.BorrowAmount),
		slog.Float64("limit_price", ticket.LimitPrice),
		slog.Bool("exceeds_credit_limit", ticket.ExceedsCreditLimit),
	)

	s.publish(ctx, ticket, fmt.Sprintf(
		"Sell %d x %s %.0f/%.0f box at %.2f (borrow %.2f)",
		ticket.Quantity, ticket.ExpirationDate.Format("Jan 2 2006"),
		ticket.StrikePrice1, ticket.StrikePrice2, ticket.LimitPrice, req.BorrowAmount,
	))

	if ticket.ExceedsCreditLimit && s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventCreditLimit,
			"Borrow exceeds credit limit",
			fmt.Sprintf("account %s requested %.2f over capacity %.2f",
				accountID, req.BorrowAmount, snap.WithdrawMargin+snap.MarginDebitBalance),
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	return ticket, nil
}

// GetTicket returns one stored ticket.
func (s *BorrowService) GetTicket(ctx context.Context, id string) (domain.OrderTicket, error) {
	t, err := s.tickets.Get(ctx, id)
	if err != nil {
		return domain.OrderTicket{}, fmt.Errorf("borrow_service: get ticket %s: %w", id, err)
	}
	return t, nil
}

// ListTickets returns an account's recent tickets, newest first.
func (s *BorrowService) ListTickets(ctx context.Context, accountID string, limit int) ([]domain.OrderTicket, error) {
	tickets, err := s.tickets.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("borrow_service: list tickets for %s: %w", accountID, err)
	}
	return tickets, nil
}

func (s *BorrowService) publish(ctx context.Context, ticket domain.OrderTicket, message string) {
	if s.bcast != nil {
		s.bcast.Broadcast("tickets", ticket)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventTicketCreated, "Order ticket", message); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}
