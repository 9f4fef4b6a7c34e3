package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	t.Run("falls back to wall clock", func(t *testing.T) {
		before := time.Now()
		got := Now(context.Background())
		assert.False(t, got.Before(before))
	})

	t.Run("returns injected time", func(t *testing.T) {
		fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	})
}

func TestStringValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Identity(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithIdentity(ctx, "anonymous")
	ctx = WithClientIP(ctx, "10.0.0.1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "anonymous", Identity(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
}
