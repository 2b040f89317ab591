package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implementa domain.CounterStore sobre Redis.
//
// Incr usa MULTI/EXEC com INCRBY + PEXPIREAT (expiração = fim da janela).
// Now devolve o relógio do Redis estimado por um offset sincronizado via TIME
// a cada syncEvery, para que processos com relógios diferentes alinhem as
// janelas no mesmo instante sem um round trip extra por requisição.
type RedisCounterStore struct {
	rdb redis.UniversalClient

	prefix    string
	syncEvery time.Duration
	now       func() time.Time

	offset   atomic.Int64 // nanos (redis - local)
	syncedAt atomic.Int64 // unix nanos local da última tentativa
	syncing  atomic.Bool
}

type RedisStoreOption func(*RedisCounterStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithClockSync define de quanto em quanto tempo o offset do relógio é refeito.
// 0 desliga o alinhamento (usa o relógio local).
func WithClockSync(d time.Duration) RedisStoreOption {
	return func(s *RedisCounterStore) { s.syncEvery = d }
}

func withRedisLocalClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisCounterStore) { s.now = now }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:       rdb,
		prefix:    "admission:rl",
		syncEvery: 30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisCounterStore) Now(ctx context.Context) time.Time {
	local := s.now()
	if s.syncEvery > 0 && local.UnixNano()-s.syncedAt.Load() >= int64(s.syncEvery) {
		if s.syncing.CompareAndSwap(false, true) {
			_ = s.SyncClock(ctx)
			s.syncing.Store(false)
			local = s.now()
		}
	}
	return local.Add(time.Duration(s.offset.Load()))
}

// SyncClock mede o offset entre o relógio local e o do Redis (TIME),
// compensando metade do round trip.
func (s *RedisCounterStore) SyncClock(ctx context.Context) error {
	before := s.now()
	s.syncedAt.Store(before.UnixNano())

	remote, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis time: %w", err)
	}
	after := s.now()

	mid := before.Add(after.Sub(before) / 2)
	s.offset.Store(int64(remote.Sub(mid)))
	return nil
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, delta int64, expireAt time.Time) (int64, error) {
	k := s.key(key)

	pipe := s.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, k, delta)
	pipe.PExpireAt(ctx, k, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %q: %w", k, err)
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func (s *RedisCounterStore) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
