package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SingleHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err, "keys are independent")
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocal_ExpiredHoldCanBeTaken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.clock = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	// the stale holder's release must not drop the new hold
	require.NoError(t, stale(ctx))
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, fresh(ctx))
}
