package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/internal/storage"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

const warmUpPageSize = 500

// BlockListCache decorates a BlockListRepo with a bloom filter so the common
// case, a number that was never blocked, skips the database entirely.
//
// The filter has no false negatives: a number absent from the filter was
// never added, so it cannot be blocked. A positive test may be a false
// positive and falls through to the database. Unblocking cannot remove an
// entry from the filter; unblocked numbers keep paying the database lookup.
//
// Assumes this process is the only writer of block entries. Rows inserted by
// another process are invisible to the filter until WarmUp runs again.
type BlockListCache struct {
	repo   storage.BlockListRepo
	filter *bloom.BloomFilter
	mu     sync.RWMutex

	skips          atomic.Int64
	lookups        atomic.Int64
	falsePositives atomic.Int64
}

// NewBlockListCache creates a cache sized for the expected number of blocked
// entries at the given false positive rate.
func NewBlockListCache(repo storage.BlockListRepo, expectedEntries uint, fpRate float64) *BlockListCache {
	return &BlockListCache{
		repo:   repo,
		filter: bloom.NewWithEstimates(expectedEntries, fpRate),
	}
}

// generateKey hashes a phone number into a stable cache key using FNV-1a.
func (c *BlockListCache) generateKey(phoneNumber string) string {
	h := fnv.New64a()
	h.Write([]byte(phoneNumber))
	return fmt.Sprintf("%x", h.Sum64())
}

// WarmUp seeds the filter from the existing block list.
func (c *BlockListCache) WarmUp(ctx context.Context) error {
	total := 0
	for offset := 0; ; offset += warmUpPageSize {
		entries, err := c.repo.List(ctx, warmUpPageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to warm up block list cache: %w", err)
		}
		c.mu.Lock()
		for _, entry := range entries {
			c.filter.AddString(c.generateKey(entry.PhoneNumber))
		}
		c.mu.Unlock()
		total += len(entries)
		if len(entries) < warmUpPageSize {
			break
		}
	}

	logger.FromContext(ctx).Info("Block list cache warmed up", zap.Int("entries", total))
	return nil
}

// IsBlocked answers from the filter when it can prove the number was never
// blocked, and defers to the database otherwise.
func (c *BlockListCache) IsBlocked(ctx context.Context, phoneNumber string) (bool, error) {
	key := c.generateKey(phoneNumber)

	c.mu.RLock()
	maybeBlocked := c.filter.TestString(key)
	c.mu.RUnlock()

	if !maybeBlocked {
		c.skips.Add(1)
		observer.IncBlockCacheCheck("skip")
		return false, nil
	}

	c.lookups.Add(1)
	blocked, err := c.repo.IsBlocked(ctx, phoneNumber)
	if err != nil {
		return false, err
	}
	if blocked {
		observer.IncBlockCacheCheck("hit")
	} else {
		c.falsePositives.Add(1)
		observer.IncBlockCacheCheck("false_positive")
	}
	return blocked, nil
}

// Block persists the entry and adds it to the filter.
func (c *BlockListCache) Block(ctx context.Context, phoneNumber, reason string, at time.Time) error {
	if err := c.repo.Block(ctx, phoneNumber, reason, at); err != nil {
		return err
	}

	c.mu.Lock()
	c.filter.AddString(c.generateKey(phoneNumber))
	c.mu.Unlock()
	return nil
}

// Unblock removes the database entry. The filter entry stays behind, so the
// number keeps resolving through the database.
func (c *BlockListCache) Unblock(ctx context.Context, phoneNumber string) error {
	return c.repo.Unblock(ctx, phoneNumber)
}

// List delegates to the underlying repository.
func (c *BlockListCache) List(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	return c.repo.List(ctx, limit, offset)
}

func (c *BlockListCache) Close(ctx context.Context) error {
	return c.repo.Close(ctx)
}

// BlockListCacheStats reports how often the filter short-circuited lookups.
type BlockListCacheStats struct {
	Skips           int64
	Lookups         int64
	FalsePositives  int64
	ApproximateSize uint64
}

// GetStats returns cache statistics.
func (c *BlockListCache) GetStats() BlockListCacheStats {
	c.mu.RLock()
	size := c.filter.ApproximatedSize()
	c.mu.RUnlock()

	return BlockListCacheStats{
		Skips:           c.skips.Load(),
		Lookups:         c.lookups.Load(),
		FalsePositives:  c.falsePositives.Load(),
		ApproximateSize: uint64(size),
	}
}

var _ storage.BlockListRepo = (*BlockListCache)(nil)
