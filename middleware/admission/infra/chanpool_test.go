package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_BlocksWhenFullUntilRelease(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if p.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", p.InFlight())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected acquire to fail while pool is full")
	}

	release()
	release2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
	release2()
}

func TestChanPool_FreeSlotWinsOverCancelledContext(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		release, ok := p.Acquire(ctx)
		if !ok {
			t.Fatalf("expected free slot to be taken even with cancelled ctx (iteration %d)", i)
		}
		release()
	}
}

func TestChanPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewChanPool(2)
	if p.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", p.Capacity())
	}

	first, _ := p.Acquire(context.Background())
	second, _ := p.Acquire(context.Background())
	first()
	first()
	if p.InFlight() != 1 {
		t.Fatalf("double release must free one slot, got %d in flight", p.InFlight())
	}
	second()
	if p.InFlight() != 0 {
		t.Fatalf("expected empty pool, got %d in flight", p.InFlight())
	}
}
