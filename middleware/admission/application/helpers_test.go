package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// downStore simula um store compartilhado inacessível.
type downStore struct {
	calls atomic.Int64
}

var errStoreDown = errors.New("dial tcp 10.0.0.5:6379: connect: connection refused")

func (s *downStore) Now(context.Context) time.Time { return time.Now() }

func (s *downStore) Incr(context.Context, string, int64, time.Time) (int64, error) {
	s.calls.Add(1)
	return 0, errStoreDown
}

func (s *downStore) Get(context.Context, string) (int64, error) { return 0, errStoreDown }
func (s *downStore) Del(context.Context, string) error          { return errStoreDown }

// slowStore bloqueia até o ctx da operação encerrar.
type slowStore struct{ downStore }

func (s *slowStore) Incr(ctx context.Context, _ string, _ int64, _ time.Time) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
