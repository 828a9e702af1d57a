package caching

import (
	"context"
	"testing"
	"time"

	"leavedesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSeatUsageCache_RoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRedisCacheService(client)
	ctx := context.Background()

	pending := 8
	usage := &models.SeatUsage{
		OrganizationID:  uuid.New(),
		ActiveSeats:     10,
		PendingRemovals: 2,
		CurrentSeats:    10,
		PendingSeats:    &pending,
	}

	miss, err := cache.GetSeatUsage(ctx, usage.OrganizationID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.SetSeatUsage(ctx, usage, 30*time.Second))
	got, err := cache.GetSeatUsage(ctx, usage.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, usage, got)

	mr.FastForward(31 * time.Second)
	expired, err := cache.GetSeatUsage(ctx, usage.OrganizationID)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestSeatUsageCache_Invalidate(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewRedisCacheService(client)
	ctx := context.Background()

	usage := &models.SeatUsage{OrganizationID: uuid.New(), ActiveSeats: 3, CurrentSeats: 3}
	require.NoError(t, cache.SetSeatUsage(ctx, usage, time.Minute))
	require.NoError(t, cache.InvalidateSeatUsage(ctx, usage.OrganizationID))

	got, err := cache.GetSeatUsage(ctx, usage.OrganizationID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Ping(ctx))
}

func TestRedisLocker(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	first := NewRedisLocker(client, time.Minute)
	second := NewRedisLocker(client, time.Minute)

	lock, err := first.Lock(ctx, "apply-pending")
	require.NoError(t, err)

	_, err = second.Lock(ctx, "apply-pending")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("leavedesk:lock:apply-pending"))

	again, err := second.Lock(ctx, "apply-pending")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}

func TestRedisLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	stale, err := NewRedisLocker(client, time.Second).Lock(ctx, "job")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := NewRedisLocker(client, time.Minute).Lock(ctx, "job")
	require.NoError(t, err)

	require.NoError(t, stale.Unlock(ctx))
	assert.True(t, mr.Exists("leavedesk:lock:job"))
	require.NoError(t, fresh.Unlock(ctx))
}
