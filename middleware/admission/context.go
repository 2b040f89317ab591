package admission

import (
	"context"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

type stateKey struct{}

// state é o estado de uma requisição dentro do pipeline. Os estágios rodam em
// sequência, mas os hooks podem ser registrados por handlers concorrentes.
type state struct {
	mu        sync.Mutex
	principal *domain.Principal
	info      *domain.RateLimitInfo
	key       string
	degraded  bool
	done      []func(status int)
}

func newState(ctx context.Context) (context.Context, *state) {
	st := &state{}
	return context.WithValue(ctx, stateKey{}, st), st
}

func stateFrom(ctx context.Context) *state {
	st, _ := ctx.Value(stateKey{}).(*state)
	return st
}

func (s *state) setPrincipal(p domain.Principal) {
	s.mu.Lock()
	s.principal = &p
	s.mu.Unlock()
}

func (s *state) getPrincipal() *domain.Principal {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *state) setRate(key string, dec domain.Decision) {
	s.mu.Lock()
	info := dec.Info
	s.info = &info
	s.key = key
	s.degraded = s.degraded || dec.Degraded
	s.mu.Unlock()
}

// onDone registra um hook chamado com o status final da resposta.
func (s *state) onDone(fn func(status int)) {
	s.mu.Lock()
	s.done = append(s.done, fn)
	s.mu.Unlock()
}

func (s *state) finish(status int) {
	s.mu.Lock()
	hooks := s.done
	s.done = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(status)
	}
}

// PrincipalFrom devolve a identidade resolvida pelo pipeline, se houver.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p := stateFrom(ctx).getPrincipal()
	if p == nil {
		return domain.Principal{}, false
	}
	return *p, true
}

// RateInfoFrom devolve a leitura do último limiter que admitiu a requisição.
func RateInfoFrom(ctx context.Context) (domain.RateLimitInfo, bool) {
	st := stateFrom(ctx)
	if st == nil {
		return domain.RateLimitInfo{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.info == nil {
		return domain.RateLimitInfo{}, false
	}
	return *st.info, true
}
