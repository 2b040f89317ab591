package admission

import (
	"encoding/json"
	"errors"
	"net/http"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteError responde com JSON {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// WriteJSON responde com v serializado (respostas administrativas).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusError sobrescreve o status padrão do Kind (ex: RATE_STATUS).
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(status int, err error) error {
	if status == 0 {
		return err
	}
	return &statusError{status: status, err: err}
}

// StatusFor traduz o Kind para o status HTTP.
func StatusFor(kind domain.Kind, hideNotFound bool) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindInvalidCredential, domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		if hideNotFound {
			return http.StatusForbidden
		}
		return http.StatusNotFound
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, stage string, err error) int {
	kind := domain.KindOf(err)
	status := StatusFor(kind, p.hide)
	var se *statusError
	if errors.As(err, &se) {
		status = se.status
	}

	msg := http.StatusText(status)
	var de *domain.Error
	if errors.As(err, &de) && de.Detail != "" {
		msg = de.Detail
	}

	switch {
	case kind == domain.KindInternal:
		// detalhe interno fica no log, nunca na resposta
		msg = "internal error"
		p.log.Error("admission stage failed",
			zap.String("stage", stage),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	case kind == domain.KindNotFound && p.hide:
		msg = "forbidden"
	default:
		p.log.Debug("request rejected",
			zap.String("stage", stage),
			zap.String("kind", string(kind)),
			zap.String("path", r.URL.Path))
	}

	WriteError(w, status, msg)
	return status
}
