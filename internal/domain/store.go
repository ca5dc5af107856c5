package domain

import (
	"context"
	"time"
)

// ContractCache stores the latest contract reference snapshot. Get returns
// ErrNotFound when nothing has been cached yet; staleness is the caller's
// check.
type ContractCache interface {
	Get(ctx context.Context) (ContractSnapshot, error)
	Set(ctx context.Context, snap ContractSnapshot) error
}

// TicketStore persists generated order tickets.
type TicketStore interface {
	Create(ctx context.Context, t OrderTicket) error
	Get(ctx context.Context, id string) (OrderTicket, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]OrderTicket, error)
}

// SnapshotStore persists margin snapshots, keeping the latest per account.
type SnapshotStore interface {
	Upsert(ctx context.Context, s MarginSnapshot) error
	ListLatest(ctx context.Context) ([]MarginSnapshot, error)
	GetByAccount(ctx context.Context, broker Broker, accountID string) (MarginSnapshot, error)
}

// LockManager provides distributed locks so concurrent replicas do not
// refresh the same account set or feed snapshot at once. Acquire returns
// ErrLockHeld when another holder owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding-window request budget per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PayloadArchiver stores raw broker payloads and feed snapshots for audit.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, broker Broker, payload []byte) error
	ArchiveSnapshot(ctx context.Context, snap ContractSnapshot) error
}
