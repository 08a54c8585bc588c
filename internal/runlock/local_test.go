package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC))
	locker := NewLocalLocker(fake)

	token, ok, err := locker.TryLock(ctx, "history", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "history", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock is still held")

	require.NoError(t, locker.Release(ctx, "history", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "history", time.Minute)
	assert.False(t, ok, "foreign token must not release")

	require.NoError(t, locker.Release(ctx, "history", token))
	second, ok, err := locker.TryLock(ctx, "history", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	fake.Advance(2 * time.Minute)
	third, ok, err := locker.TryLock(ctx, "history", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken over")
	assert.NotEqual(t, second, third)
}

func TestLocalLockerValidates(t *testing.T) {
	locker := NewLocalLocker(nil)
	_, _, err := locker.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestNewLockerFallsBackToLocal(t *testing.T) {
	_, ok := NewLocker(nil, clock.System()).(*LocalLocker)
	assert.True(t, ok)
}
