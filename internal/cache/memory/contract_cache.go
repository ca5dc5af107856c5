// Package memory provides in-process cache implementations used when no
// Redis instance is configured.
package memory

import (
	"context"
	"sync"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// ContractCache holds the latest contract snapshot in process memory.
type ContractCache struct {
	mu   sync.RWMutex
	snap domain.ContractSnapshot
	set  bool
}

// NewContractCache creates an empty in-memory contract cache.
func NewContractCache() *ContractCache {
	return &ContractCache{}
}

// Get returns the stored snapshot, or ErrNotFound when nothing has been
// stored.
func (c *ContractCache) Get(_ context.Context) (domain.ContractSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return domain.ContractSnapshot{}, domain.ErrNotFound
	}
	return c.snap, nil
}

// Set stores a snapshot, replacing any previous one.
func (c *ContractCache) Set(_ context.Context, snap domain.ContractSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.set = true
	return nil
}
