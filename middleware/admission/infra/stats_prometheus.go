package infra

import (
	"context"
	"errors"

	"admission-gateway/middleware/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe as decisões do pipeline como métricas.
// Labels de baixa cardinalidade apenas: a chave do cliente nunca vira label.
type PrometheusStats struct {
	decisions *prometheus.CounterVec
	degraded  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	s := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by pipeline, terminating stage and outcome.",
		}, []string{"pipeline", "stage", "outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "degraded_total",
			Help:      "Rate decisions taken on the process-local fallback counter.",
		}, []string{"pipeline"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "admission",
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent in admission stages, excluding the downstream handler.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"pipeline"}),
	}

	var err error
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.degraded, err = register(reg, s.degraded); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	return s, nil
}

// register reaproveita o collector já registrado (ex: dois pipelines no mesmo registry).
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeAdmitted
	}
	s.decisions.WithLabelValues(ev.Pipeline, ev.Stage, outcome).Inc()
	if ev.Degraded {
		s.degraded.WithLabelValues(ev.Pipeline).Inc()
	}
	if ev.Duration > 0 {
		s.duration.WithLabelValues(ev.Pipeline).Observe(ev.Duration.Seconds())
	}
	return nil
}

// TeeStats repassa cada evento para todos os stores, juntando os erros.
type TeeStats []domain.StatsStore

func (t TeeStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
