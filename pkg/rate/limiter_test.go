package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.True(t, l.IsUnlimited())
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow())
	}
}

func TestLimiter_Throttles(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.False(t, l.IsUnlimited())
	assert.Equal(t, float64(1), l.Limit())

	require.True(t, l.Allow())
	assert.False(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Take(ctx))
}
