package application

import (
	"context"
	"errors"

	"admission-gateway/middleware/admission/domain"
)

// OwnerLookup devolve o id do dono do recurso alvo da requisição.
// Pode suspender (consulta a um store externo).
type OwnerLookup func(ctx context.Context) (string, error)

func unauthenticated() error {
	return domain.NewError(domain.KindUnauthorized, "authentication required")
}

// CheckRole admite se p tem um dos papéis permitidos.
// Sem principal é sempre Unauthorized, nunca Forbidden.
func CheckRole(p *domain.Principal, allowed ...domain.Role) error {
	if p == nil {
		return unauthenticated()
	}
	if !p.HasRole(allowed...) {
		return domain.NewError(domain.KindForbidden, "insufficient role")
	}
	return nil
}

// CheckOwnership consulta o dono do recurso e admite o próprio dono ou um admin.
func CheckOwnership(ctx context.Context, p *domain.Principal, lookup OwnerLookup) error {
	if p == nil {
		return unauthenticated()
	}

	owner, err := lookup(ctx)
	if err != nil {
		var de *domain.Error
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return domain.WrapError(domain.KindNotFound, "resource not found", err)
		case errors.As(err, &de):
			return err
		default:
			return domain.WrapError(domain.KindInternal, "owner lookup failed", err)
		}
	}

	if p.IsAdmin() {
		return nil
	}
	if owner != "" && owner == p.ID {
		return nil
	}
	return domain.NewError(domain.KindForbidden, "not the resource owner")
}
