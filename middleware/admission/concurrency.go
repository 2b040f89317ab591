package admission

import (
	"context"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

// StageConcurrency é o nome do limite nas estatísticas.
const StageConcurrency = "concurrency"

type ConcurrencyOptions struct {
	// Name agrupa as recusas nas estatísticas, como um pipeline (ex: "bid").
	Name string
	// Max <= 0 desliga o limite.
	Max int
	// RejectStatus padrão: 503.
	RejectStatus int
	// AcquireTimeout segue ConcurrencyService: < 0 não espera.
	AcquireTimeout time.Duration

	Stats  domain.StatsStore
	Logger *zap.Logger
}

// ConcurrencyMiddleware fica na frente do pipeline de lances: sem vaga, o lance
// é recusado antes de gastar rate limit ou identidade, e a recusa entra nas
// estatísticas com Outcome "busy".
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.With(zap.String("pipeline", opts.Name), zap.String("stage", StageConcurrency))

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			release, ok := svc.Acquire(r.Context())
			if !ok {
				log.Debug("bid rejected, no free slot",
					zap.Int("in_flight", svc.InFlight()),
					zap.Int("capacity", svc.Capacity()),
					zap.Duration("waited", time.Since(start)),
				)
				recordBusy(r, opts, log, start)
				w.Header().Set("Retry-After", "1")
				WriteError(w, opts.RejectStatus, "server busy, try again later")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

func recordBusy(r *http.Request, opts ConcurrencyOptions, log *zap.Logger, start time.Time) {
	if opts.Stats == nil {
		return
	}
	err := opts.Stats.Record(context.WithoutCancel(r.Context()), domain.StatsEvent{
		Pipeline: opts.Name,
		Stage:    StageConcurrency,
		Outcome:  domain.OutcomeBusy,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       start,
		Duration: time.Since(start),
	})
	if err != nil {
		log.Debug("stats record failed", zap.Error(err))
	}
}
