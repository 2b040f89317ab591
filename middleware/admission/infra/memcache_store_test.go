package infra

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemcache struct {
	mu    sync.Mutex
	items map[string]*memcache.Item
	err   error
	// raceOnAdd simula outro processo criando a chave antes do Add.
	raceOnAdd bool
}

func newFakeMemcache() *fakeMemcache {
	return &fakeMemcache{items: make(map[string]*memcache.Item)}
}

func (f *fakeMemcache) Get(key string) (*memcache.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	return it, nil
}

func (f *fakeMemcache) Add(item *memcache.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.raceOnAdd {
		f.raceOnAdd = false
		f.items[item.Key] = &memcache.Item{Key: item.Key, Value: []byte("4"), Expiration: item.Expiration}
		return memcache.ErrNotStored
	}
	if _, ok := f.items[item.Key]; ok {
		return memcache.ErrNotStored
	}
	f.items[item.Key] = item
	return nil
}

func (f *fakeMemcache) update(key string, fn func(uint64) uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	it, ok := f.items[key]
	if !ok {
		return 0, memcache.ErrCacheMiss
	}
	cur, _ := strconv.ParseUint(string(it.Value), 10, 64)
	next := fn(cur)
	it.Value = []byte(strconv.FormatUint(next, 10))
	return next, nil
}

func (f *fakeMemcache) Increment(key string, delta uint64) (uint64, error) {
	return f.update(key, func(v uint64) uint64 { return v + delta })
}

func (f *fakeMemcache) Decrement(key string, delta uint64) (uint64, error) {
	return f.update(key, func(v uint64) uint64 {
		if delta > v {
			return 0
		}
		return v - delta
	})
}

func (f *fakeMemcache) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return memcache.ErrCacheMiss
	}
	delete(f.items, key)
	return nil
}

func TestMemcacheCounterStore_IncrCreatesThenIncrements(t *testing.T) {
	now := time.Unix(1000, 0)
	fake := newFakeMemcache()
	s := newMemcacheCounterStoreWithClient(fake, func() time.Time { return now })
	ctx := context.Background()

	n, err := s.Incr(ctx, "k", 1, now.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int32(2), fake.items["admission:rl:k"].Expiration, "expiration rounds up to whole seconds")

	n, err = s.Incr(ctx, "k", 1, now.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Incr(ctx, "k", -1, now.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemcacheCounterStore_IncrRetriesWhenAddLosesRace(t *testing.T) {
	fake := newFakeMemcache()
	fake.raceOnAdd = true
	s := newMemcacheCounterStoreWithClient(fake, time.Now)

	n, err := s.Incr(context.Background(), "k", 1, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMemcacheCounterStore_DecrementOnMissingIsNoop(t *testing.T) {
	s := newMemcacheCounterStoreWithClient(newFakeMemcache(), time.Now)

	n, err := s.Incr(context.Background(), "k", -1, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemcacheCounterStore_PropagatesConnectionErrors(t *testing.T) {
	fake := newFakeMemcache()
	fake.err = errors.New("dial tcp 127.0.0.1:11211: connect: connection refused")
	s := newMemcacheCounterStoreWithClient(fake, time.Now)
	ctx := context.Background()

	_, err := s.Incr(ctx, "k", 1, time.Now().Add(time.Second))
	require.Error(t, err)
	_, err = s.Get(ctx, "k")
	require.Error(t, err)
}

func TestMemcacheCounterStore_DelIgnoresMissingKey(t *testing.T) {
	s := newMemcacheCounterStoreWithClient(newFakeMemcache(), time.Now)
	require.NoError(t, s.Del(context.Background(), "nope"))
}

// hangingServer aceita conexões e nunca responde.
func hangingServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestNewMemcacheCounterStore_AppliesTimeout(t *testing.T) {
	s := NewMemcacheCounterStore(75*time.Millisecond, 8, " memcache://127.0.0.1:11211 ")
	c, ok := s.client.(*memcache.Client)
	require.True(t, ok)
	assert.Equal(t, 75*time.Millisecond, c.Timeout)
	assert.Equal(t, 8, c.MaxIdleConns)

	// zero mantém o padrão do client (memcache.DefaultTimeout)
	def := NewMemcacheCounterStore(0, 0, "127.0.0.1:11211")
	assert.Zero(t, def.client.(*memcache.Client).Timeout)
}

func TestMemcacheCounterStore_UnresponsiveServerFailsWithinTimeout(t *testing.T) {
	s := NewMemcacheCounterStore(50*time.Millisecond, 0, hangingServer(t))

	start := time.Now()
	_, err := s.Incr(context.Background(), "k", 1, time.Now().Add(time.Minute))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
