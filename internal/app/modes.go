package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/server"
	"github.com/syntheticfi/boxloan/internal/server/handler"
	"github.com/syntheticfi/boxloan/internal/server/ws"
	"github.com/syntheticfi/boxloan/internal/service"
)

// feedRefreshLockKey serializes feed refreshes across replicas.
const feedRefreshLockKey = "feed:refresh"

// ServeMode runs the HTTP + WebSocket API together with the periodic
// contract feed refresh loop. It blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	balanceSvc := service.NewBalanceService(
		deps.Adapters, deps.Snapshots, deps.Archiver, deps.Notifier, hub, a.logger,
	)
	borrowSvc := service.NewBorrowService(
		deps.Engine, deps.Feed, deps.Snapshots, deps.Tickets, deps.Notifier, hub, a.logger,
	)
	repaySvc := service.NewRepayService(
		deps.Engine, deps.Feed, deps.Tickets, deps.Notifier, hub, a.logger,
	)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Accounts: handler.NewAccountHandler(balanceSvc, borrowSvc, repaySvc, a.logger),
		Tickets:  handler.NewTicketHandler(borrowSvc, repaySvc, a.logger),
		Payloads: handler.NewPayloadHandler(balanceSvc, a.logger),
		Rates:    handler.NewRatesHandler(deps.Feed, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if a.cfg.Feed.BaseURL != "" {
		g.Go(func() error {
			return a.runFeedRefresh(ctx, deps)
		})
	} else {
		a.logger.InfoContext(ctx, "feed base_url not set, pricing uses built-in defaults")
	}

	return g.Wait()
}

// runFeedRefresh periodically refreshes the contract snapshot, taking a
// distributed lock so only one replica hits the upstream feed per interval.
// Each fresh snapshot is archived when an archiver is configured.
func (a *App) runFeedRefresh(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Feed.RefreshInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "feed refresh loop started",
		slog.Duration("interval", interval),
	)

	refresh := func() {
		// Without Redis there is a single replica and nothing to lock.
		if deps.LockManager != nil {
			release, err := deps.LockManager.Acquire(ctx, feedRefreshLockKey, interval)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.DebugContext(ctx, "feed refresh lock held by another replica")
				} else {
					a.logger.WarnContext(ctx, "feed refresh lock failed", slog.String("error", err.Error()))
				}
				return
			}
			defer release()
		}

		snap, err := deps.Feed.Refresh(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "feed refresh failed", slog.String("error", err.Error()))
			return
		}
		if deps.Archiver != nil {
			if err := deps.Archiver.ArchiveSnapshot(ctx, snap); err != nil {
				a.logger.WarnContext(ctx, "snapshot archive failed", slog.String("error", err.Error()))
			}
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			refresh()
		}
	}
}

// PlanMode computes a single borrow plan from the command line and prints
// the result as JSON. Inputs come from BOXLOAN_PLAN_AMOUNT and
// BOXLOAN_PLAN_PERIOD_DAYS.
func (a *App) PlanMode(ctx context.Context, deps *Dependencies) error {
	amount, err := strconv.ParseFloat(os.Getenv("BOXLOAN_PLAN_AMOUNT"), 64)
	if err != nil {
		return fmt.Errorf("app: plan mode: BOXLOAN_PLAN_AMOUNT: %w", err)
	}
	period, err := strconv.Atoi(os.Getenv("BOXLOAN_PLAN_PERIOD_DAYS"))
	if err != nil {
		return fmt.Errorf("app: plan mode: BOXLOAN_PLAN_PERIOD_DAYS: %w", err)
	}

	ref := deps.Feed.Reference(ctx)
	plan, err := deps.Engine.PlanBorrow(time.Now(), domain.BorrowRequest{
		BorrowAmount: amount,
		PeriodInDays: period,
	}, ref.Ladder, ref.Curve, ref.Strikes)
	if err != nil {
		return fmt.Errorf("app: plan mode: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// IngestMode reads one raw broker payload from stdin, reconciles and
// persists the margin snapshots it contains, and prints them as JSON. The
// broker is selected with BOXLOAN_INGEST_BROKER.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	broker := domain.Broker(os.Getenv("BOXLOAN_INGEST_BROKER"))
	if broker == "" {
		return fmt.Errorf("app: ingest mode: BOXLOAN_INGEST_BROKER must be set")
	}

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("app: ingest mode: read stdin: %w", err)
	}

	balanceSvc := service.NewBalanceService(
		deps.Adapters, deps.Snapshots, deps.Archiver, deps.Notifier, nil, a.logger,
	)
	snaps, err := balanceSvc.IngestPayload(ctx, broker, payload)
	if err != nil {
		return fmt.Errorf("app: ingest mode: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}
