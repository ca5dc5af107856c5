// Package service wires the pricing engine, broker adapters, and stores
// into the operations the API exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/reconcile"
)

// Notification event types.
const (
	EventTicketCreated     = "ticket.created"
	EventSnapshotRefreshed = "snapshot.refreshed"
	EventCreditLimit       = "credit.limit"
)

// Broadcaster pushes a JSON-serializable payload to websocket subscribers
// of a channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Notifier is the notification surface the services use.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BalanceService ingests raw broker payloads, reconciles box positions,
// and maintains the latest margin snapshot per account.
type BalanceService struct {
	adapters  map[domain.Broker]domain.BrokerAdapter
	snapshots domain.SnapshotStore
	archiver  domain.PayloadArchiver
	notifier  Notifier
	bcast     Broadcaster
	logger    *slog.Logger
	now       func() time.Time
}

// NewBalanceService creates a BalanceService. archiver, notifier, and
// bcast may be nil.
func NewBalanceService(
	adapters []domain.BrokerAdapter,
	snapshots domain.SnapshotStore,
	archiver domain.PayloadArchiver,
	notifier Notifier,
	bcast Broadcaster,
	logger *slog.Logger,
) *BalanceService {
	byBroker := make(map[domain.Broker]domain.BrokerAdapter, len(adapters))
	for _, a := range adapters {
		byBroker[a.Broker()] = a
	}
	return &BalanceService{
		adapters:  byBroker,
		snapshots: snapshots,
		archiver:  archiver,
		notifier:  notifier,
		bcast:     bcast,
		logger:    logger.With(slog.String("component", "balance_service")),
		now:       time.Now,
	}
}

// IngestPayload parses one raw broker capture, rebuilds the margin
// snapshots it describes, persists them, and broadcasts the refreshed
// account list. The raw payload is archived verbatim when an archiver is
// configured.
func (s *BalanceService) IngestPayload(ctx context.Context, broker domain.Broker, payload []byte) ([]domain.MarginSnapshot, error) {
	adapter, ok := s.adapters[broker]
	if !ok {
		return nil, fmt.Errorf("balance_service: ingest %q: %w", broker, domain.ErrUnknownBroker)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchivePayload(ctx, broker, payload); err != nil {
			s.logger.WarnContext(ctx, "payload archive failed",
				slog.String("broker", string(broker)),
				slog.String("error", err.Error()),
			)
			// Non-fatal: reconciliation still proceeds.
		}
	}

	accounts, err := adapter.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("balance_service: parse %s payload: %w", broker, err)
	}

	refreshedAt := s.now()
	snaps := make([]domain.MarginSnapshot, len(accounts))
	for i, acct := range accounts {
		snap := acct.Snapshot
		reconcile.Enrich(&snap, acct.Legs)
		snap.RefreshedAt = refreshedAt
		snaps[i] = snap
	}
	reconcile.SortAccounts(snaps)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, snap := range snaps {
		g.Go(func() error {
			if err := s.snapshots.Upsert(gctx, snap); err != nil {
				return fmt.Errorf("balance_service: persist snapshot %s/%s: %w", snap.Broker, snap.AccountID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "broker payload ingested",
		slog.String("broker", string(broker)),
		slog.Int("accounts", len(snaps)),
	)

	if s.bcast != nil {
		s.bcast.Broadcast("snapshots", snaps)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventSnapshotRefreshed,
			"Balances refreshed",
			fmt.Sprintf("%s: %d account(s) reconciled", broker, len(snaps)),
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	return snaps, nil
}

// ListAccounts returns the latest snapshot of every known account,
// borrowing-capable accounts first.
func (s *BalanceService) ListAccounts(ctx context.Context) ([]domain.MarginSnapshot, error) {
	snaps, err := s.snapshots.ListLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance_service: list accounts: %w", err)
	}
	return snaps, nil
}
