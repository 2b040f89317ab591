package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// RateLimitConfig descreve uma política de janela fixa.
// O gerador de chave fica na camada HTTP (ver admission.KeyFunc).
type RateLimitConfig struct {
	Window         time.Duration
	Max            int
	SkipSuccessful bool
	SkipFailed     bool
	StatusCode     int
	Message        string
}

func (c RateLimitConfig) Validate() error {
	if c.Window <= 0 {
		return errors.New("rate limit window must be > 0")
	}
	if c.Max <= 0 {
		return errors.New("rate limit max must be > 0")
	}
	return nil
}

// RateLimitInfo é a leitura (sem efeito colateral) de um contador.
type RateLimitInfo struct {
	Limit     int
	Current   int64
	Remaining int
	ResetTime time.Time
}

func NewRateLimitInfo(limit int, current int64, reset time.Time) RateLimitInfo {
	remaining := int64(limit) - current
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitInfo{
		Limit:     limit,
		Current:   current,
		Remaining: int(remaining),
		ResetTime: reset,
	}
}

type Decision struct {
	Allowed bool
	Info    RateLimitInfo
	// Key é a chave física do contador (política + chave lógica + início da janela).
	Key string
	// Degraded indica que a decisão veio do contador local porque o store
	// compartilhado estava indisponível.
	Degraded bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// CounterStore é a capacidade de contador atômico com expiração.
//
// Há implementações em rede (Redis, Memcached) e em processo; o fallback do
// limiter é só uma substituição de implementação.
type CounterStore interface {
	// Now devolve o relógio de referência do store (alinhamento de janelas).
	Now(ctx context.Context) time.Time
	// Incr soma delta atomicamente e define a expiração absoluta se a chave é nova.
	Incr(ctx context.Context, key string, delta int64, expireAt time.Time) (int64, error)
	// Get devolve 0 para chave inexistente/expirada.
	Get(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, key string) error
}

// WindowStart alinha t ao início da janela fixa que o contém.
func WindowStart(t time.Time, window time.Duration) time.Time {
	ms := window.Milliseconds()
	if ms <= 0 {
		return t
	}
	return time.UnixMilli(t.UnixMilli() / ms * ms)
}
