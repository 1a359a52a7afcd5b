package cloak_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReplayGuard(t *testing.T) {
	ctx := context.Background()
	guard := cloak.NewMemoryReplayGuard(8, time.Minute)

	fresh, err := guard.Consume(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.Consume(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = guard.Consume(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.Consume(ctx, "", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestMemoryReplayGuard_Concurrent(t *testing.T) {
	guard := cloak.NewMemoryReplayGuard(0, 0)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := guard.Consume(context.Background(), "shared", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
