package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(2)

	assert.True(t, rl.AllowUser(1))
	assert.True(t, rl.AllowUser(1))
	assert.False(t, rl.AllowUser(1))

	// Buckets are per user.
	assert.True(t, rl.AllowUser(2))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("k"))
	}
}

func TestRateLimiterWaitCanceled(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "k"))
}
