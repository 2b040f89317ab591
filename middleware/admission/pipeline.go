package admission

import (
	"context"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// Stage é um passo do pipeline. nil admite e segue para o próximo estágio;
// qualquer erro é terminal. Check pode escrever headers, mas não o corpo.
type Stage interface {
	Name() string
	Check(w http.ResponseWriter, r *http.Request) error
}

type stageFunc struct {
	name string
	fn   func(w http.ResponseWriter, r *http.Request) error
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Check(w http.ResponseWriter, r *http.Request) error { return s.fn(w, r) }

// StageFunc adapta uma função em Stage.
func StageFunc(name string, fn func(w http.ResponseWriter, r *http.Request) error) Stage {
	return stageFunc{name: name, fn: fn}
}

type Options struct {
	// Name identifica o pipeline em logs e estatísticas (ex: "bid", "standard").
	Name   string
	Logger *zap.Logger
	Stats  domain.StatsStore
	// HideNotFound responde 403 em vez de 404 quando o recurso alvo de uma
	// checagem de dono não existe.
	HideNotFound bool
}

// Pipeline roda uma lista ordenada de estágios; a ordem é a do slice.
type Pipeline struct {
	name   string
	stages []Stage
	log    *zap.Logger
	stats  domain.StatsStore
	hide   bool
}

func New(opts Options, stages ...Stage) *Pipeline {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		name:   opts.Name,
		stages: stages,
		log:    opts.Logger.With(zap.String("pipeline", opts.Name)),
		stats:  opts.Stats,
		hide:   opts.HideNotFound,
	}
}

func (p *Pipeline) Name() string { return p.name }

// Stages devolve os nomes dos estágios na ordem de execução.
func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, st := newState(r.Context())
		r = r.WithContext(ctx)
		rec := &statusRecorder{ResponseWriter: w}

		for _, s := range p.stages {
			err := s.Check(rec, r)
			if err == nil {
				continue
			}
			status := p.reject(rec, r, s.Name(), err)
			st.finish(status)
			p.record(r, st, s.Name(), string(domain.KindOf(err)), start)
			return
		}

		p.record(r, st, "", domain.OutcomeAdmitted, start)
		defer func() {
			// handler que entra em pânico não completou: os hooks veem 500, nunca
			// o 200 implícito de um writer sem status.
			if v := recover(); v != nil {
				st.finish(http.StatusInternalServerError)
				panic(v)
			}
			st.finish(rec.Status())
		}()
		next.ServeHTTP(rec, r)
	})
}

// Middleware permite usar o pipeline com router.With/Use.
func (p *Pipeline) Middleware() func(next http.Handler) http.Handler { return p.Handler }

func (p *Pipeline) record(r *http.Request, st *state, stage, outcome string, start time.Time) {
	if p.stats == nil {
		return
	}
	st.mu.Lock()
	key, degraded := st.key, st.degraded
	st.mu.Unlock()

	// best-effort: estatística nunca derruba a requisição
	err := p.stats.Record(context.WithoutCancel(r.Context()), domain.StatsEvent{
		Pipeline: p.name,
		Stage:    stage,
		Outcome:  outcome,
		Key:      key,
		Degraded: degraded,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       start,
		Duration: time.Since(start),
	})
	if err != nil {
		p.log.Debug("stats record failed", zap.Error(err))
	}
}

// statusRecorder guarda o status final para os hooks de conclusão.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap expõe o writer original para http.ResponseController (Flush etc.).
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
