package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// contractTTL keeps dead snapshots from lingering forever; freshness is
// still judged by the snapshot's own FetchedAt.
const contractTTL = 72 * time.Hour

const contractKey = "contracts:snapshot"

// ContractCache implements domain.ContractCache with a single JSON value.
type ContractCache struct {
	rdb *redis.Client
}

// NewContractCache creates a ContractCache backed by the given Client.
func NewContractCache(c *Client) *ContractCache {
	return &ContractCache{rdb: c.Underlying()}
}

// Get retrieves the stored contract snapshot.
// It returns domain.ErrNotFound when no snapshot has been stored.
func (cc *ContractCache) Get(ctx context.Context) (domain.ContractSnapshot, error) {
	data, err := cc.rdb.Get(ctx, contractKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ContractSnapshot{}, domain.ErrNotFound
		}
		return domain.ContractSnapshot{}, fmt.Errorf("redis: get contract snapshot: %w", err)
	}

	var snap domain.ContractSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ContractSnapshot{}, fmt.Errorf("redis: unmarshal contract snapshot: %w", err)
	}
	return snap, nil
}

// Set stores a contract snapshot, replacing any previous one.
func (cc *ContractCache) Set(ctx context.Context, snap domain.ContractSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal contract snapshot: %w", err)
	}
	if err := cc.rdb.Set(ctx, contractKey, data, contractTTL).Err(); err != nil {
		return fmt.Errorf("redis: set contract snapshot: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ContractCache = (*ContractCache)(nil)
