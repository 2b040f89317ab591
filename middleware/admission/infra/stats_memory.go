package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

type Counters struct {
	Admitted int64
	Rejected map[string]int64
	Degraded int64
}

func (c Counters) clone() Counters {
	out := Counters{Admitted: c.Admitted, Degraded: c.Degraded, Rejected: make(map[string]int64, len(c.Rejected))}
	for k, v := range c.Rejected {
		out.Rejected[k] = v
	}
	return out
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Degraded {
		c.Degraded++
	}
	if ev.Allowed() {
		c.Admitted++
		return
	}
	if c.Rejected == nil {
		c.Rejected = make(map[string]int64)
	}
	c.Rejected[ev.Outcome]++
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byPipeline map[string]Counters
	byKey      map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byPipeline: make(map[string]Counters),
		byKey:      make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byPipeline[ev.Pipeline]
	c.add(ev)
	s.byPipeline[ev.Pipeline] = c

	if s.trackKeys && ev.Key != "" {
		k := s.byKey[ev.Key]
		k.add(ev)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByPipeline() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byPipeline))
	for k, v := range s.byPipeline {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v.clone()
	}
	return out
}
