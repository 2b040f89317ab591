package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AsyncStats tira um StatsStore de rede do caminho da requisição: Record só
// enfileira e uma goroutine repassa ao store de destino. Fila cheia descarta o
// evento; estatística nunca segura uma decisão de admissão.
type AsyncStats struct {
	next    domain.StatsStore
	events  chan domain.StatsEvent
	timeout time.Duration
	log     *zap.Logger

	dropped  atomic.Int64
	failed   atomic.Int64
	warnDrop rate.Sometimes
	warnFail rate.Sometimes

	once sync.Once
	done chan struct{}
}

type AsyncOption func(*AsyncStats)

// WithAsyncBuffer define o tamanho da fila (padrão 1024).
func WithAsyncBuffer(n int) AsyncOption {
	return func(s *AsyncStats) {
		if n > 0 {
			s.events = make(chan domain.StatsEvent, n)
		}
	}
}

// WithAsyncTimeout limita cada Record no store de destino (padrão 50ms).
func WithAsyncTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncStats) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithAsyncLogger(log *zap.Logger) AsyncOption {
	return func(s *AsyncStats) {
		if log != nil {
			s.log = log
		}
	}
}

func NewAsyncStats(next domain.StatsStore, opts ...AsyncOption) *AsyncStats {
	s := &AsyncStats{
		next:    next,
		events:  make(chan domain.StatsEvent, 1024),
		timeout: 50 * time.Millisecond,
		log:     zap.NewNop(),
		done:    make(chan struct{}),

		warnDrop: rate.Sometimes{Interval: 10 * time.Second},
		warnFail: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record nunca bloqueia.
func (s *AsyncStats) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
		s.warnDrop.Do(func() {
			s.log.Warn("stats queue full, dropping events", zap.Int64("dropped", s.dropped.Load()))
		})
	}
	return nil
}

// Start sobe a goroutine de envio. Quando ctx encerra, o que já estava na fila
// é enviado e Done fecha. Chamadas repetidas são ignoradas.
func (s *AsyncStats) Start(ctx context.Context) {
	s.once.Do(func() {
		go s.run(ctx)
	})
}

func (s *AsyncStats) Done() <-chan struct{} { return s.done }

// Dropped conta eventos descartados por fila cheia.
func (s *AsyncStats) Dropped() int64 { return s.dropped.Load() }

// Failed conta eventos que o store de destino recusou ou não gravou no prazo.
func (s *AsyncStats) Failed() int64 { return s.failed.Load() }

func (s *AsyncStats) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.send(ev)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *AsyncStats) drain() {
	for {
		select {
		case ev := <-s.events:
			s.send(ev)
		default:
			return
		}
	}
}

func (s *AsyncStats) send(ev domain.StatsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.next.Record(ctx, ev); err != nil {
		s.failed.Add(1)
		s.warnFail.Do(func() {
			s.log.Warn("stats store record failed", zap.Error(err))
		})
	}
}
