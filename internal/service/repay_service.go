package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/engine"
)

// RepayService prices the buy-back of an open box and manages price bumps
// on unfilled tickets.
type RepayService struct {
	engine   *engine.Engine
	refs     referenceSource
	tickets  domain.TicketStore
	notifier Notifier
	bcast    Broadcaster
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepayService creates a RepayService. notifier and bcast may be nil.
func NewRepayService(
	eng *engine.Engine,
	refs referenceSource,
	tickets domain.TicketStore,
	notifier Notifier,
	bcast Broadcaster,
	logger *slog.Logger,
) *RepayService {
	return &RepayService{
		engine:   eng,
		refs:     refs,
		tickets:  tickets,
		notifier: notifier,
		bcast:    bcast,
		logger:   logger.With(slog.String("component", "repay_service")),
		now:      time.Now,
	}
}

// PlanRepay prices buying back an open box at current market rates and
// records the resulting debit ticket. The rate is looked up off the box's
// own remaining duration, not the original borrow terms.
func (s *RepayService) PlanRepay(ctx context.Context, broker domain.Broker, accountID string, req domain.RepayRequest) (domain.OrderTicket, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderTicket{}, fmt.Errorf("repay_service: validate: %w", err)
	}

	now := s.now()
	period := s.engine.SettlementPeriod(now, req.ExpirationDate)
	ref := s.refs.Reference(ctx)

	width := req.StrikePrice2 - req.StrikePrice1
	price, err := s.engine.LimitPrice(now, period, width, period, ref.Ladder, ref.Curve)
	if err != nil {
		return domain.OrderTicket{}, fmt.Errorf("repay_service: price for %s/%s: %w", broker, accountID, err)
	}

	costBasis := req.CostBasis
	ticket := domain.OrderTicket{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		AccountName:     accountID,
		Broker:          broker,
		Direction:       domain.DirectionDebit,
		ExpirationDate:  req.ExpirationDate,
		StrikePrice1:    req.StrikePrice1,
		StrikePrice2:    req.StrikePrice2,
		Quantity:        req.Quantity,
		LimitPrice:      price,
		UpfrontCash:     price * 100 * float64(req.Quantity),
		RepaymentAmount: width * 100 * float64(req.Quantity),
		CostBasis:       &costBasis,
		Source:          domain.PlanSourceLive,
		CreatedAt:       now,
	}
	if !ref.FromFeed {
		ticket.Source = domain.PlanSourceFallback
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return domain.OrderTicket{}, fmt.Errorf("repay_service: store ticket: %w", err)
	}

	s.logger.InfoContext(ctx, "repay ticket created",
		slog.String("ticket_id", ticket.ID),
		slog.String("account_id", accountID),
		slog.Int("period_days", period),
		slog.Float64("limit_price", price),
	)

	s.publish(ctx, ticket, fmt.Sprintf(
		"Buy %d x %s %.0f/%.0f box at %.2f",
		ticket.Quantity, ticket.ExpirationDate.Format("Jan 2 2006"),
		ticket.StrikePrice1, ticket.StrikePrice2, ticket.LimitPrice,
	))

	return ticket, nil
}

// Bump reprices an unfilled credit ticket one basis point cheaper for the
// market and records the replacement ticket. The new price always drops by
// at least one tick.
func (s *RepayService) Bump(ctx context.Context, ticketID string) (domain.OrderTicket, error) {
	prev, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return domain.OrderTicket{}, fmt.Errorf("repay_service: bump %s: %w", ticketID, err)
	}

	now := s.now()
	newPrice := s.engine.BumpPrice(now, prev.ExpirationDate, prev.StrikePrice1, prev.StrikePrice2, prev.LimitPrice)

	ticket := prev
	ticket.ID = uuid.NewString()
	ticket.LimitPrice = newPrice
	ticket.UpfrontCash = newPrice * 100 * float64(prev.Quantity)
	ticket.CreatedAt = now

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return domain.OrderTicket{}, fmt.Errorf("repay_service: store bumped ticket: %w", err)
	}

	s.logger.InfoContext(ctx, "ticket bumped",
		slog.String("previous_id", prev.ID),
		slog.String("ticket_id", ticket.ID),
		slog.Float64("previous_price", prev.LimitPrice),
		slog.Float64("limit_price", newPrice),
	)

	s.publish(ctx, ticket, fmt.Sprintf(
		"Reprice %s %.0f/%.0f box from %.2f to %.2f",
		ticket.ExpirationDate.Format("Jan 2 2006"),
		ticket.StrikePrice1, ticket.StrikePrice2, prev.LimitPrice, newPrice,
	))

	return ticket, nil
}

func (s *RepayService) publish(ctx context.Context, ticket domain.OrderTicket, message string) {
	if s.bcast != nil {
		s.bcast.Broadcast("tickets", ticket)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventTicketCreated, "Order ticket", message); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}
