package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BudgetPerKey(t *testing.T) {
	l, err := New(3)
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "user:alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)

	d, err = l.Allow(ctx, "user:bob")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestNew_RejectsZeroBudget(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}
