package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcacheClient é a superfície mínima usada por MemcacheCounterStore.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Add(item *memcache.Item) error
	Increment(key string, delta uint64) (uint64, error)
	Decrement(key string, delta uint64) (uint64, error)
	Delete(key string) error
}

// MemcacheCounterStore implementa domain.CounterStore sobre Memcached.
//
// Memcached não expõe relógio, então Now é o relógio local; a expiração tem
// granularidade de segundos, mas como a chave já carrega o início da janela
// isso só atrasa a remoção, nunca junta janelas. Decrement satura em zero.
type MemcacheCounterStore struct {
	client memcacheClient
	prefix string
	now    func() time.Time
}

// NewMemcacheCounterStore cria o store sobre um memcache.Client. timeout limita
// dial e cada leitura/escrita; o client não recebe context, então é o único
// limite de um servidor que aceita a conexão e não responde.
func NewMemcacheCounterStore(timeout time.Duration, maxIdleConns int, addrs ...string) *MemcacheCounterStore {
	trimmed := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		a = strings.TrimPrefix(a, "memcache://")
		if a != "" {
			trimmed = append(trimmed, a)
		}
	}
	c := memcache.New(trimmed...)
	if timeout > 0 {
		c.Timeout = timeout
	}
	if maxIdleConns > 0 {
		c.MaxIdleConns = maxIdleConns
	}
	return newMemcacheCounterStoreWithClient(c, time.Now)
}

func newMemcacheCounterStoreWithClient(c memcacheClient, now func() time.Time) *MemcacheCounterStore {
	return &MemcacheCounterStore{client: c, prefix: "admission:rl:", now: now}
}

func (s *MemcacheCounterStore) Now(context.Context) time.Time { return s.now() }

func (s *MemcacheCounterStore) expiration(expireAt time.Time) int32 {
	d := expireAt.Sub(s.now())
	secs := int32((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *MemcacheCounterStore) Incr(_ context.Context, key string, delta int64, expireAt time.Time) (int64, error) {
	k := s.prefix + key
	for attempt := 0; attempt < 2; attempt++ {
		n, err := s.apply(k, delta)
		if err == nil {
			return int64(n), nil
		}
		if !errors.Is(err, memcache.ErrCacheMiss) {
			return 0, fmt.Errorf("memcache incr %q: %w", k, err)
		}
		if delta < 0 {
			return 0, nil
		}

		err = s.client.Add(&memcache.Item{
			Key:        k,
			Value:      []byte(strconv.FormatInt(delta, 10)),
			Expiration: s.expiration(expireAt),
		})
		if err == nil {
			return delta, nil
		}
		// outro processo criou a chave entre o miss e o Add: tenta incrementar de novo
		if !errors.Is(err, memcache.ErrNotStored) {
			return 0, fmt.Errorf("memcache add %q: %w", k, err)
		}
	}
	return 0, fmt.Errorf("memcache incr %q: contended key", k)
}

func (s *MemcacheCounterStore) apply(k string, delta int64) (uint64, error) {
	if delta < 0 {
		return s.client.Decrement(k, uint64(-delta))
	}
	return s.client.Increment(k, uint64(delta))
}

func (s *MemcacheCounterStore) Get(_ context.Context, key string) (int64, error) {
	it, err := s.client.Get(s.prefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memcache get: %w", err)
	}
	// valores decrementados podem ficar com espaços à direita
	n, err := strconv.ParseInt(strings.TrimSpace(string(it.Value)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memcache get: %w", err)
	}
	return n, nil
}

func (s *MemcacheCounterStore) Del(_ context.Context, key string) error {
	err := s.client.Delete(s.prefix + key)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcache delete: %w", err)
	}
	return nil
}
