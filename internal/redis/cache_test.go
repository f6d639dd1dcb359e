package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var sampleSlots = []availability.Slot{
	{Start: availability.Clock(9, 0), End: availability.Clock(9, 30), Available: true},
	{Start: availability.Clock(9, 30), End: availability.Clock(10, 0), Available: false},
}

func TestCacheMissPutHit(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, 30*time.Second)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	date := availability.NewDate(2026, time.March, 4)

	_, token, hit, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NotEmpty(t, token)

	require.NoError(t, cache.Put(ctx, token, sampleSlots))

	slots, again, hit, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, token, again)
	assert.Equal(t, sampleSlots, slots)
}

func TestCacheEntriesExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, 30*time.Second)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	date := availability.NewDate(2026, time.March, 4)

	_, token, _, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, token, sampleSlots))

	mr.FastForward(31 * time.Second)

	_, _, hit, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateDayOnlyTouchesThatDay(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, time.Minute)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	wed := availability.NewDate(2026, time.March, 4)
	thu := wed.AddDays(1)

	for _, d := range []availability.Date{wed, thu} {
		_, token, _, err := cache.Get(ctx, clinic, doctor, d)
		require.NoError(t, err)
		require.NoError(t, cache.Put(ctx, token, sampleSlots))
	}

	require.NoError(t, cache.InvalidateDay(ctx, doctor, wed))

	_, _, hit, err := cache.Get(ctx, clinic, doctor, wed)
	require.NoError(t, err)
	assert.False(t, hit)

	_, _, hit, err = cache.Get(ctx, clinic, doctor, thu)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestStalePutAfterInvalidationIsNeverServed(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, time.Minute)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	date := availability.NewDate(2026, time.March, 4)

	// a reader computes, a booking lands, then the reader stores its stale view
	_, token, _, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateDay(ctx, doctor, date))
	require.NoError(t, cache.Put(ctx, token, sampleSlots))

	_, _, hit, err := cache.Get(ctx, clinic, doctor, date)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateClinicAndGlobal(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, time.Minute)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	date := availability.NewDate(2026, time.March, 4)

	fill := func() {
		_, token, _, err := cache.Get(ctx, clinic, doctor, date)
		require.NoError(t, err)
		require.NoError(t, cache.Put(ctx, token, sampleSlots))
	}

	fill()
	require.NoError(t, cache.InvalidateClinic(ctx, uuid.New()))
	_, _, hit, _ := cache.Get(ctx, clinic, doctor, date)
	assert.True(t, hit, "other clinic's invalidation must not evict")

	require.NoError(t, cache.InvalidateClinic(ctx, clinic))
	_, _, hit, _ = cache.Get(ctx, clinic, doctor, date)
	assert.False(t, hit)

	fill()
	require.NoError(t, cache.InvalidateClinic(ctx, uuid.Nil))
	_, _, hit, _ = cache.Get(ctx, clinic, doctor, date)
	assert.False(t, hit)

	assert.True(t, mr.Exists(globalGenKey))
	assert.False(t, mr.Exists(dayGenKey(doctor, date)))
}

func TestInvalidateDaySetsGenerationTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, 30*time.Second)
	doctor := uuid.New()
	date := availability.NewDate(2026, time.March, 4)

	require.NoError(t, cache.InvalidateDay(context.Background(), doctor, date))
	assert.Equal(t, time.Hour, mr.TTL(dayGenKey(doctor, date)))
}

func TestCacheUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewAvailabilityCache(client, time.Minute)
	mr.Close()

	_, _, _, err := cache.Get(context.Background(), uuid.New(), uuid.New(), availability.NewDate(2026, time.March, 4))
	assert.Error(t, err)
}
