package domain

import "errors"

// Kind classifica a decisão terminal de um estágio do pipeline.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindInvalidCredential   Kind = "invalid_credential"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// ErrNotFound é retornado por um OwnerDirectory quando o recurso não existe.
var ErrNotFound = errors.New("resource not found")

// Error carrega o Kind e a mensagem que pode ser exposta ao cliente.
// Err (se houver) é a causa interna e nunca vai para a resposta.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func NewError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func WrapError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Detail + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf devolve o Kind de err. Erros fora da taxonomia são KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
