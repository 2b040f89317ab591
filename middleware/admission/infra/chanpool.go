package infra

import (
	"context"
	"sync/atomic"

	"admission-gateway/middleware/admission/domain"
)

// ChanPool guarda as vagas de lance num channel com buffer = capacidade.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func NewChanPool(capacity int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, capacity)}
}

// Acquire prefere uma vaga livre mesmo com ctx já encerrado.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.releaser(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) releaser() func() {
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			<-p.sem
		}
	}
}

// InFlight é o número de vagas ocupadas no momento.
func (p *ChanPool) InFlight() int { return len(p.sem) }

func (p *ChanPool) Capacity() int { return cap(p.sem) }
