package application

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultStoreTimeout = 50 * time.Millisecond

// WindowLimiter é a política padrão: janela fixa com contador no store
// compartilhado e fallback para um contador local quando o store falha.
//
// No fallback cada processo conta sozinho, então o limite global efetivo vira
// Max × processos; ainda assim nunca libera sem limite (não falha aberto).
type WindowLimiter struct {
	name     string
	cfg      domain.RateLimitConfig
	store    domain.CounterStore
	fallback domain.CounterStore
	timeout  time.Duration
	log      *zap.Logger

	degraded atomic.Bool
	warn     rate.Sometimes
}

type WindowOption func(*WindowLimiter)

// WithStoreTimeout limita cada operação no store compartilhado; estourar o
// prazo conta como store indisponível.
func WithStoreTimeout(d time.Duration) WindowOption {
	return func(l *WindowLimiter) { l.timeout = d }
}

func WithLogger(log *zap.Logger) WindowOption {
	return func(l *WindowLimiter) {
		if log != nil {
			l.log = log
		}
	}
}

// NewWindowLimiter cria a política `name`. shared pode ser nil (apenas contador local);
// fallback é obrigatório.
func NewWindowLimiter(name string, cfg domain.RateLimitConfig, shared, fallback domain.CounterStore, opts ...WindowOption) (*WindowLimiter, error) {
	if name == "" {
		return nil, errors.New("rate limit policy name is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fallback == nil {
		return nil, errors.New("fallback counter store is required")
	}
	if shared == nil {
		shared = fallback
	}

	l := &WindowLimiter{
		name:     name,
		cfg:      cfg,
		store:    shared,
		fallback: fallback,
		timeout:  DefaultStoreTimeout,
		log:      zap.NewNop(),
		warn:     rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(zap.String("policy", name))
	return l, nil
}

func (l *WindowLimiter) Name() string                   { return l.name }
func (l *WindowLimiter) Config() domain.RateLimitConfig { return l.cfg }

// Degraded informa se a última operação no store compartilhado falhou.
func (l *WindowLimiter) Degraded() bool { return l.degraded.Load() }

func (l *WindowLimiter) counterKey(key string, start time.Time) string {
	return l.name + ":" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

func (l *WindowLimiter) window(ctx context.Context, s domain.CounterStore, key string) (now, end time.Time, ck string) {
	now = s.Now(ctx)
	start := domain.WindowStart(now, l.cfg.Window)
	return now, start.Add(l.cfg.Window), l.counterKey(key, start)
}

// opContext desacopla a operação do cancelamento da requisição: um incremento
// já enviado termina mesmo se o cliente desistir (contar a mais é aceitável,
// contar a menos não).
func (l *WindowLimiter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) domain.Decision {
	opCtx, cancel := l.opContext(ctx)
	defer cancel()

	now, end, ck := l.window(opCtx, l.store, key)
	n, err := l.store.Incr(opCtx, ck, 1, end)
	degraded := false
	if err != nil && l.store != l.fallback {
		l.markDegraded(err)
		degraded = true
		// o prazo de opCtx pode já ter estourado; o fallback é local
		local := context.WithoutCancel(ctx)
		now, end, ck = l.window(local, l.fallback, key)
		n, err = l.fallback.Incr(local, ck, 1, end)
	} else if err == nil {
		l.markRecovered()
	}

	if err != nil {
		l.log.Error("local fallback counter failed, rejecting", zap.Error(err))
		return domain.Decision{
			Info:       domain.NewRateLimitInfo(l.cfg.Max, int64(l.cfg.Max), end),
			Key:        ck,
			Degraded:   true,
			RetryAfter: end.Sub(now),
		}
	}

	dec := domain.Decision{
		Allowed:  n <= int64(l.cfg.Max),
		Info:     domain.NewRateLimitInfo(l.cfg.Max, n, end),
		Key:      ck,
		Degraded: degraded,
	}
	if !dec.Allowed {
		dec.RetryAfter = end.Sub(now)
	}
	return dec
}

// Refund desfaz a contagem de uma decisão (skipSuccessful/skipFailed), no mesmo
// store que a contou.
func (l *WindowLimiter) Refund(ctx context.Context, dec domain.Decision) {
	if dec.Key == "" {
		return
	}
	s := l.store
	if dec.Degraded {
		s = l.fallback
	}

	opCtx, cancel := l.opContext(ctx)
	defer cancel()
	if _, err := s.Incr(opCtx, dec.Key, -1, dec.Info.ResetTime); err != nil {
		l.log.Debug("refund failed", zap.String("key", dec.Key), zap.Error(err))
	}
}

// Status lê o contador da janela atual sem alterá-lo.
func (l *WindowLimiter) Status(ctx context.Context, key string) (domain.RateLimitInfo, error) {
	opCtx, cancel := l.opContext(ctx)
	defer cancel()

	_, end, ck := l.window(opCtx, l.store, key)
	n, err := l.store.Get(opCtx, ck)
	if err != nil && l.store != l.fallback {
		l.markDegraded(err)
		local := context.WithoutCancel(ctx)
		_, end, ck = l.window(local, l.fallback, key)
		n, err = l.fallback.Get(local, ck)
	}
	if err != nil {
		return domain.RateLimitInfo{}, err
	}
	return domain.NewRateLimitInfo(l.cfg.Max, n, end), nil
}

// Reset zera imediatamente o contador da janela atual, no store compartilhado
// e no fallback.
func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	opCtx, cancel := l.opContext(ctx)
	defer cancel()

	local := context.WithoutCancel(ctx)
	_, _, lk := l.window(local, l.fallback, key)
	localErr := l.fallback.Del(local, lk)
	if l.store == l.fallback {
		return localErr
	}

	_, _, ck := l.window(opCtx, l.store, key)
	if err := l.store.Del(opCtx, ck); err != nil {
		l.markDegraded(err)
		return errors.Join(err, localErr)
	}
	return localErr
}

func (l *WindowLimiter) markDegraded(err error) {
	if l.degraded.CompareAndSwap(false, true) {
		l.log.Warn("shared counter store unavailable, counting locally", zap.Error(err))
		return
	}
	l.warn.Do(func() {
		l.log.Warn("shared counter store still unavailable", zap.Error(err))
	})
}

func (l *WindowLimiter) markRecovered() {
	if l.degraded.CompareAndSwap(true, false) {
		l.log.Info("shared counter store recovered")
	}
}
