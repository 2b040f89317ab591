package application

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// FastConfig configura o fast path do endpoint de lances.
type FastConfig struct {
	// MaxPerWindow é o limite por processo. O limite global efetivo é
	// aproximadamente MaxPerWindow × número de processos.
	MaxPerWindow int
	// Window padrão: 1s.
	Window time.Duration
	// GlobalMax > 0 liga a saturação via reconciliação: quando o total somado no
	// store compartilhado chega a GlobalMax, a chave passa a ser rejeitada
	// localmente até o fim da janela.
	GlobalMax int
	// ReconcileEvery padrão: 1s.
	ReconcileEvery time.Duration
}

// FastLimiter decide apenas com contadores atômicos locais: não há I/O no
// caminho da requisição. O store compartilhado (opcional) só é tocado por
// Reconcile, fora do caminho quente.
type FastLimiter struct {
	cfg   FastConfig
	store domain.CounterStore
	now   func() time.Time
	log   *zap.Logger

	// afterCount roda entre o incremento e a checagem de bucket órfão (testes).
	afterCount func(key string)

	buckets sync.Map // string -> *fastBucket
}

type fastBucket struct {
	win       atomic.Pointer[fastWindow]
	saturated atomic.Int64 // id da janela marcada como saturada pela reconciliação
}

type fastWindow struct {
	id      int64
	count   atomic.Int64
	flushed atomic.Int64
}

type FastOption func(*FastLimiter)

func WithSharedStore(s domain.CounterStore) FastOption {
	return func(l *FastLimiter) { l.store = s }
}

func WithFastLogger(log *zap.Logger) FastOption {
	return func(l *FastLimiter) {
		if log != nil {
			l.log = log
		}
	}
}

func withFastClock(now func() time.Time) FastOption {
	return func(l *FastLimiter) { l.now = now }
}

func NewFastLimiter(cfg FastConfig, opts ...FastOption) (*FastLimiter, error) {
	if cfg.MaxPerWindow <= 0 {
		return nil, errors.New("fast path max per window must be > 0")
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.ReconcileEvery <= 0 {
		cfg.ReconcileEvery = time.Second
	}

	l := &FastLimiter{cfg: cfg, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *FastLimiter) Config() FastConfig { return l.cfg }

func (l *FastLimiter) windowID(t time.Time) int64 { return t.UnixNano() / int64(l.cfg.Window) }

func (l *FastLimiter) windowEnd(id int64) time.Time {
	return time.Unix(0, (id+1)*int64(l.cfg.Window))
}

func (l *FastLimiter) bucket(key string) *fastBucket {
	if b, ok := l.buckets.Load(key); ok {
		return b.(*fastBucket)
	}
	b, _ := l.buckets.LoadOrStore(key, &fastBucket{})
	return b.(*fastBucket)
}

// current devolve a janela id do bucket, trocando-a via CAS quando virou.
func (b *fastBucket) current(id int64) *fastWindow {
	for {
		w := b.win.Load()
		if w != nil && w.id >= id {
			return w
		}
		nw := &fastWindow{id: id}
		if b.win.CompareAndSwap(w, nw) {
			return nw
		}
	}
}

func (l *FastLimiter) Allow(key string) domain.Decision {
	id := l.windowID(l.now())
	reset := l.windowEnd(id)

	for {
		b := l.bucket(key)
		w := b.current(id)

		if b.saturated.Load() == id {
			return domain.Decision{
				Info:       domain.NewRateLimitInfo(l.cfg.MaxPerWindow, int64(l.cfg.MaxPerWindow), reset),
				Key:        "fast:" + key,
				RetryAfter: reset.Sub(l.now()),
			}
		}

		n := w.count.Add(1)
		if l.afterCount != nil {
			l.afterCount(key)
		}
		// Reset ou Reconcile removeram o bucket depois do Load: a contagem ficou
		// num bucket órfão, então conta de novo no bucket vivo.
		if cur, ok := l.buckets.Load(key); !ok || cur.(*fastBucket) != b {
			continue
		}

		dec := domain.Decision{
			Allowed: n <= int64(l.cfg.MaxPerWindow),
			Info:    domain.NewRateLimitInfo(l.cfg.MaxPerWindow, n, reset),
			Key:     "fast:" + key,
		}
		if !dec.Allowed {
			dec.RetryAfter = reset.Sub(l.now())
		}
		return dec
	}
}

func (l *FastLimiter) Status(key string) domain.RateLimitInfo {
	id := l.windowID(l.now())
	var n int64
	if v, ok := l.buckets.Load(key); ok {
		if w := v.(*fastBucket).win.Load(); w != nil && w.id == id {
			n = w.count.Load()
		}
	}
	return domain.NewRateLimitInfo(l.cfg.MaxPerWindow, n, l.windowEnd(id))
}

func (l *FastLimiter) Reset(key string) {
	l.buckets.Delete(key)
}

func (l *FastLimiter) sharedKey(key string, id int64) string {
	return "fast:" + key + ":" + strconv.FormatInt(id, 10)
}

// Reconcile envia ao store compartilhado o que cada processo admitiu desde a
// última rodada e marca como saturadas as chaves cujo total global chegou a
// GlobalMax. Também remove buckets de janelas já encerradas.
func (l *FastLimiter) Reconcile(ctx context.Context) {
	cur := l.windowID(l.now())

	l.buckets.Range(func(k, v any) bool {
		key := k.(string)
		b := v.(*fastBucket)
		w := b.win.Load()
		if w == nil {
			return true
		}

		if l.store != nil {
			l.push(ctx, key, b, w, cur)
		}
		if w.id < cur-1 {
			l.buckets.CompareAndDelete(key, b)
		}
		return true
	})
}

func (l *FastLimiter) push(ctx context.Context, key string, b *fastBucket, w *fastWindow, cur int64) {
	admitted := w.count.Load()
	if limit := int64(l.cfg.MaxPerWindow); admitted > limit {
		admitted = limit
	}
	delta := admitted - w.flushed.Swap(admitted)

	var total int64
	var err error
	switch {
	case delta > 0:
		total, err = l.store.Incr(ctx, l.sharedKey(key, w.id), delta, l.windowEnd(w.id))
		if err != nil {
			w.flushed.Add(-delta)
		}
	case l.cfg.GlobalMax > 0 && w.id == cur:
		total, err = l.store.Get(ctx, l.sharedKey(key, w.id))
	default:
		return
	}
	if err != nil {
		l.log.Debug("fast path reconciliation failed", zap.String("key", key), zap.Error(err))
		return
	}

	if l.cfg.GlobalMax > 0 && w.id == cur && total >= int64(l.cfg.GlobalMax) {
		b.saturated.Store(w.id)
	}
}

// Start roda Reconcile a cada ReconcileEvery até ctx encerrar.
func (l *FastLimiter) Start(ctx context.Context) {
	t := time.NewTicker(l.cfg.ReconcileEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Reconcile(ctx)
			}
		}
	}()
}
