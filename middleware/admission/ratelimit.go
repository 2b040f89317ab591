package admission

import (
	"net/http"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

const DefaultRateMessage = "too many requests, please try again later"

func setRateHeaders(w http.ResponseWriter, info domain.RateLimitInfo) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(info.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(info.Remaining))
	h.Set("X-RateLimit-Reset", formatUnix(info.ResetTime))
}

func rateLimited(w http.ResponseWriter, dec domain.Decision, status int, msg string) error {
	if msg == "" {
		msg = DefaultRateMessage
	}
	w.Header().Set("Retry-After", retryAfterSeconds(dec.RetryAfter))
	return withStatus(status, domain.NewError(domain.KindRateLimited, msg))
}

// RateLimit aplica a política padrão (janela fixa no store compartilhado).
func RateLimit(l *application.WindowLimiter, keyFn KeyFunc) Stage {
	return StageFunc("rate:"+l.Name(), func(w http.ResponseWriter, r *http.Request) error {
		return checkWindow(w, r, l, keyFn(r))
	})
}

// EndpointRateLimit aplica a regra mais específica para o path; sem regra, admite.
func EndpointRateLimit(e *application.EndpointLimiter, keyFn KeyFunc) Stage {
	return StageFunc("rate:endpoint", func(w http.ResponseWriter, r *http.Request) error {
		l, ok := e.Match(r.URL.Path)
		if !ok {
			return nil
		}
		return checkWindow(w, r, l, keyFn(r))
	})
}

func checkWindow(w http.ResponseWriter, r *http.Request, l *application.WindowLimiter, key string) error {
	cfg := l.Config()
	dec := l.Allow(r.Context(), key)
	st := stateFrom(r.Context())
	st.setRate(key, dec)
	setRateHeaders(w, dec.Info)

	if !dec.Allowed {
		return rateLimited(w, dec, cfg.StatusCode, cfg.Message)
	}

	if cfg.SkipSuccessful || cfg.SkipFailed {
		ctx := r.Context()
		st.onDone(func(status int) {
			failed := status >= http.StatusBadRequest
			if (failed && cfg.SkipFailed) || (!failed && cfg.SkipSuccessful) {
				l.Refund(ctx, dec)
			}
		})
	}
	return nil
}

// FastRateLimit é o estágio da rota de lances: só contadores locais, sem I/O.
func FastRateLimit(l *application.FastLimiter, keyFn KeyFunc) Stage {
	return StageFunc("rate:fast", func(w http.ResponseWriter, r *http.Request) error {
		key := keyFn(r)
		dec := l.Allow(key)
		stateFrom(r.Context()).setRate(key, dec)
		setRateHeaders(w, dec.Info)
		if !dec.Allowed {
			return rateLimited(w, dec, 0, "")
		}
		return nil
	})
}
