package admission

import (
	"context"
	"net/http"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

func RequireRole(roles ...domain.Role) Stage {
	return StageFunc("role", func(_ http.ResponseWriter, r *http.Request) error {
		return application.CheckRole(stateFrom(r.Context()).getPrincipal(), roles...)
	})
}

// ResourceIDFunc extrai o id do recurso alvo (ex: chi.URLParam(r, "id")).
type ResourceIDFunc func(r *http.Request) string

// RequireOwnership admite apenas o dono do recurso kind/id (ou um admin).
func RequireOwnership(kind string, dir domain.OwnerDirectory, idFn ResourceIDFunc) Stage {
	return StageFunc("ownership", func(_ http.ResponseWriter, r *http.Request) error {
		id := idFn(r)
		lookup := func(ctx context.Context) (string, error) {
			if id == "" {
				return "", domain.NewError(domain.KindBadRequest, "missing resource id")
			}
			return dir.Owner(ctx, kind, id)
		}
		return application.CheckOwnership(r.Context(), stateFrom(r.Context()).getPrincipal(), lookup)
	})
}
