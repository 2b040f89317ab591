package application

import (
	"context"
	"testing"
	"time"
)

type blockingPool struct {
}

func (p *blockingPool) InFlight() int { return 1 }
func (p *blockingPool) Capacity() int { return 1 }

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

type immediatePool struct {
	acquired int
	ctxDone  bool
}

func (p *immediatePool) InFlight() int { return 0 }
func (p *immediatePool) Capacity() int { return 8 }

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	p.ctxDone = ctx.Err() != nil
	return func() {}, true
}

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	start := time.Now()
	_, ok := svc.Acquire(context.Background())
	if ok {
		t.Fatalf("expected timeout and ok=false")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected acquire to give up after the timeout")
	}
}

func TestConcurrencyService_Acquire_NegativeTimeoutDoesNotWait(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: -1}

	start := time.Now()
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected immediate rejection")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected no wait, took %s", time.Since(start))
	}
}

func TestConcurrencyService_Acquire_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 0}

	_, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
	if pool.ctxDone {
		t.Fatalf("expected request ctx to be passed through untouched")
	}
}

func TestConcurrencyService_DescribesPool(t *testing.T) {
	var none ConcurrencyService
	if none.InFlight() != 0 || none.Capacity() != 0 {
		t.Fatalf("expected zero values without a pool")
	}

	svc := ConcurrencyService{Pool: &blockingPool{}}
	if svc.InFlight() != 1 || svc.Capacity() != 1 {
		t.Fatalf("expected pool values, got %d/%d", svc.InFlight(), svc.Capacity())
	}
}
