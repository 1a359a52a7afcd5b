package redis

import (
	"context"
	"fmt"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/redis/go-redis/v9"
)

var _ cloak.ReplayGuard = (*ReplayGuard)(nil)

// ReplayGuard records consumed login link ids with SETNX so a link is
// accepted once across every instance sharing the Redis.
type ReplayGuard struct {
	client redis.UniversalClient
	prefix string
}

// NewReplayGuard creates a guard using the "cloak:jti:" prefix.
func NewReplayGuard(client redis.UniversalClient) *ReplayGuard {
	return &ReplayGuard{
		client: client,
		prefix: "cloak:jti:",
	}
}

// Consume implements cloak.ReplayGuard. Keys outlive the token by a
// second to cover clock skew between instances.
func (g *ReplayGuard) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	if ttl <= 0 {
		ttl = cloak.MaxLoginLinkAge
	}

	ok, err := g.client.SetNX(ctx, g.prefix+tokenID, 1, ttl+time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
