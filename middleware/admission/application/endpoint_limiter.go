package application

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// EndpointRule associa um padrão de path a uma configuração de limite.
// Pattern é exato ("/api/bid") ou prefixo quando termina em "*" ("/api/podcasts/*").
type EndpointRule struct {
	Name    string
	Pattern string
	Config  domain.RateLimitConfig
}

type endpointEntry struct {
	rule    EndpointRule
	path    string
	prefix  bool
	limiter *WindowLimiter
}

// EndpointLimiter é a política avançada: lista ordenada de (padrão, limiter)
// avaliada do mais específico para o menos específico. Exato vence prefixo,
// prefixo mais longo vence o mais curto e, no empate, vale a ordem declarada.
type EndpointLimiter struct {
	entries []*endpointEntry
	byName  map[string]*WindowLimiter
}

func NewEndpointLimiter(rules []EndpointRule, shared, fallback domain.CounterStore, opts ...WindowOption) (*EndpointLimiter, error) {
	e := &EndpointLimiter{byName: make(map[string]*WindowLimiter, len(rules))}

	for _, r := range rules {
		if r.Name == "" {
			return nil, errors.New("endpoint rule name is required")
		}
		if _, dup := e.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate endpoint rule %q", r.Name)
		}
		path, prefix := strings.CutSuffix(r.Pattern, "*")
		if !prefix && !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("endpoint rule %q: pattern must start with / or end with *", r.Name)
		}

		lim, err := NewWindowLimiter("endpoint:"+r.Name, r.Config, shared, fallback, opts...)
		if err != nil {
			return nil, fmt.Errorf("endpoint rule %q: %w", r.Name, err)
		}
		e.entries = append(e.entries, &endpointEntry{rule: r, path: path, prefix: prefix, limiter: lim})
		e.byName[r.Name] = lim
	}

	slices.SortStableFunc(e.entries, func(a, b *endpointEntry) int {
		if a.prefix != b.prefix {
			if !a.prefix {
				return -1
			}
			return 1
		}
		if a.prefix {
			return len(b.path) - len(a.path)
		}
		return 0
	})
	return e, nil
}

// Match devolve o limiter da regra mais específica para path.
// Sem regra aplicável a requisição não é limitada por esta política.
func (e *EndpointLimiter) Match(path string) (*WindowLimiter, bool) {
	if e == nil {
		return nil, false
	}
	for _, ent := range e.entries {
		if ent.prefix && strings.HasPrefix(path, ent.path) {
			return ent.limiter, true
		}
		if !ent.prefix && path == ent.path {
			return ent.limiter, true
		}
	}
	return nil, false
}

// Limiter busca a política pelo nome da regra (status/reset administrativo).
func (e *EndpointLimiter) Limiter(name string) (*WindowLimiter, bool) {
	if e == nil {
		return nil, false
	}
	l, ok := e.byName[name]
	return l, ok
}

// Rules devolve as regras na ordem de avaliação.
func (e *EndpointLimiter) Rules() []EndpointRule {
	out := make([]EndpointRule, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, ent.rule)
	}
	return out
}
