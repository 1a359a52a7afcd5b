package cloak

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ReplayGuard makes tokens single use. Consume returns false when the
// token id was already seen.
type ReplayGuard interface {
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// MemoryReplayGuard remembers consumed token ids in a bounded, expiring
// LRU. It only protects a single process.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewMemoryReplayGuard keeps up to size ids for at least ttl.
func NewMemoryReplayGuard(size int, ttl time.Duration) *MemoryReplayGuard {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = MaxLoginLinkAge
	}
	return &MemoryReplayGuard{
		seen: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Consume implements ReplayGuard. The ttl argument is ignored, entries
// live for the guard's configured ttl.
func (g *MemoryReplayGuard) Consume(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen.Contains(tokenID) {
		return false, nil
	}
	g.seen.Add(tokenID, struct{}{})
	return true, nil
}
