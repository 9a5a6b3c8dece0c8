package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitRetriesWithinMax(t *testing.T) {
	b := New(Config{Name: "t", BaseInterval: time.Millisecond, MaxRetries: 2, Scale: 1})
	ctx := context.Background()

	assert.True(t, b.Wait(ctx))
	assert.True(t, b.Wait(ctx))
	assert.False(t, b.Wait(ctx))
	assert.Equal(t, 3, b.Attempt())
}

func TestResetZeroesAttempt(t *testing.T) {
	b := New(Config{Name: "t", BaseInterval: time.Millisecond, MaxRetries: 1, Scale: 1})
	ctx := context.Background()

	b.Wait(ctx)
	b.Wait(ctx)
	b.Reset()

	assert.Equal(t, 0, b.Attempt())
	assert.True(t, b.Wait(ctx))
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	b := New(Config{Name: "t", BaseInterval: time.Hour, MaxRetries: 5, Scale: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, b.Wait(ctx))
}

func TestWaitScalesInterval(t *testing.T) {
	b := New(Config{Name: "t", BaseInterval: time.Millisecond, MaxRetries: 10, Scale: 2})
	ctx := context.Background()

	start := time.Now()
	b.Wait(ctx) // 1ms
	b.Wait(ctx) // 2ms
	b.Wait(ctx) // 4ms
	assert.GreaterOrEqual(t, time.Since(start), 6*time.Millisecond)
}
