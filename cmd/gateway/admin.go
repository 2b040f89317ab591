package main

import (
	"context"
	"net/http"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ratePolicy é o que a rota administrativa precisa de um limiter.
type ratePolicy interface {
	Status(ctx context.Context, key string) (domain.RateLimitInfo, error)
	Reset(ctx context.Context, key string) error
}

// fastPolicy adapta o FastLimiter (visão local, sem erro) a ratePolicy.
type fastPolicy struct{ l *application.FastLimiter }

func (p fastPolicy) Status(_ context.Context, key string) (domain.RateLimitInfo, error) {
	return p.l.Status(key), nil
}

func (p fastPolicy) Reset(_ context.Context, key string) error {
	p.l.Reset(key)
	return nil
}

func (g *gateway) policies() map[string]ratePolicy {
	out := map[string]ratePolicy{
		g.standard.Name(): g.standard,
		"fast":            fastPolicy{g.fast},
	}
	for _, rule := range g.endpoints.Rules() {
		if l, ok := g.endpoints.Limiter(rule.Name); ok {
			out[l.Name()] = l
		}
	}
	return out
}

type rateAdmin struct {
	policies map[string]ratePolicy
	log      *zap.Logger
}

type statusResponse struct {
	Policy    string    `json:"policy"`
	Key       string    `json:"key"`
	Limit     int       `json:"limit"`
	Current   int64     `json:"current"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

func (a *rateAdmin) lookup(w http.ResponseWriter, r *http.Request) (string, string, ratePolicy, bool) {
	name, key := chi.URLParam(r, "policy"), chi.URLParam(r, "*")
	p, ok := a.policies[name]
	if !ok {
		admission.WriteError(w, http.StatusNotFound, "unknown rate limit policy")
		return "", "", nil, false
	}
	if key == "" {
		admission.WriteError(w, http.StatusBadRequest, "missing rate limit key")
		return "", "", nil, false
	}
	return name, key, p, true
}

func (a *rateAdmin) status(w http.ResponseWriter, r *http.Request) {
	name, key, p, ok := a.lookup(w, r)
	if !ok {
		return
	}
	info, err := p.Status(r.Context(), key)
	if err != nil {
		a.log.Error("rate limit status failed", zap.String("policy", name), zap.Error(err))
		admission.WriteError(w, http.StatusServiceUnavailable, "counter store unavailable")
		return
	}
	admission.WriteJSON(w, http.StatusOK, statusResponse{
		Policy:    name,
		Key:       key,
		Limit:     info.Limit,
		Current:   info.Current,
		Remaining: info.Remaining,
		ResetTime: info.ResetTime.UTC(),
	})
}

func (a *rateAdmin) reset(w http.ResponseWriter, r *http.Request) {
	name, key, p, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if err := p.Reset(r.Context(), key); err != nil {
		a.log.Error("rate limit reset failed", zap.String("policy", name), zap.Error(err))
		admission.WriteError(w, http.StatusServiceUnavailable, "counter store unavailable")
		return
	}
	if pr, ok := admission.PrincipalFrom(r.Context()); ok {
		a.log.Info("rate limit reset", zap.String("policy", name), zap.String("key", key), zap.String("by", pr.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}
