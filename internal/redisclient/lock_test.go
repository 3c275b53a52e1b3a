package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

func TestWithSlotLock_RunsCriticalSection(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)

	ran := false
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithSlotLock_ContendedSlotRejected(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	slotID := uuid.New()

	inner := errors.New("should not run")
	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		// A second acquisition of the same slot while held must fail.
		err := locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error {
			return inner
		})
		require.ErrorIs(t, err, ErrLockNotAcquired)
		return nil
	})

	require.NoError(t, err)
}

func TestWithSlotLock_ReleasedAfterUse(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	slotID := uuid.New()

	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	// Lock key must be gone, so a later booking attempt can take it.
	err = locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLock_DistinctSlotsIndependent(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)

	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return locker.WithSlotLock(ctx, uuid.New(), func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithSlotLock_PropagatesCallbackError(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)

	boom := errors.New("claim failed")
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}
