package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return m, rdb
}

func TestRedisCounterStore_IncrSetsExpiryAtWindowEnd(t *testing.T) {
	m, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb, WithKeyPrefix("test:"), WithClockSync(0))
	ctx := context.Background()

	exp := time.Now().Add(2 * time.Second)
	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "k", 1, exp)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	assert.True(t, m.Exists("test:k"))
	ttl := m.TTL("test:k")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
}

func TestRedisCounterStore_GetMissingIsZeroAndDel(t *testing.T) {
	_, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb, WithClockSync(0))
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = s.Incr(ctx, "k", 5, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Del(ctx, "k"))

	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestRedisCounterStore_NowFollowsStoreClock(t *testing.T) {
	m, rdb := newMiniredis(t)
	storeTime := time.Date(2031, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetTime(storeTime)

	s := NewRedisCounterStore(rdb, WithClockSync(time.Hour))
	got := s.Now(context.Background())

	assert.WithinDuration(t, storeTime, got, time.Second)
}

func TestRedisCounterStore_ErrorsWhenUnreachable(t *testing.T) {
	m, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb, WithClockSync(0))
	m.Close()

	_, err := s.Incr(context.Background(), "k", 1, time.Now().Add(time.Second))
	require.Error(t, err)

	local := time.Now()
	assert.WithinDuration(t, local, s.Now(context.Background()), time.Second)
}

func TestRedisCounterStore_NowKeepsLastOffsetWhenSyncFails(t *testing.T) {
	m, rdb := newMiniredis(t)
	storeTime := time.Now().Add(10 * time.Minute)
	m.SetTime(storeTime)

	local := time.Now()
	s := NewRedisCounterStore(rdb, WithClockSync(time.Millisecond), withRedisLocalClock(func() time.Time { return local }))
	require.NoError(t, s.SyncClock(context.Background()))

	m.Close()
	local = local.Add(time.Second)

	got := s.Now(context.Background())
	assert.WithinDuration(t, storeTime.Add(time.Second), got, 50*time.Millisecond)
}
