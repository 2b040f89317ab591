package admission

import (
	"net/http"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// Resolver é o que o estágio de identidade precisa de application.IdentityResolver.
type Resolver interface {
	ResolveToken(raw string) (domain.Principal, error)
	ResolveAPIKey(raw string) (domain.Principal, error)
}

const DefaultAPIKeyHeader = "X-Api-Key"

// Authenticate resolve o Principal a partir de "Authorization: Bearer <token>" ou,
// se apiKeyHeader não for vazio, do header de API key.
//
// Sem credencial ou com header Authorization mal formado: Unauthorized.
// Credencial presente mas inválida: InvalidCredential (também 401).
func Authenticate(res Resolver, apiKeyHeader string) Stage {
	return StageFunc("identity", func(_ http.ResponseWriter, r *http.Request) error {
		st := stateFrom(r.Context())

		if h := r.Header.Get("Authorization"); h != "" {
			scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
			tok = strings.TrimSpace(tok)
			if !ok || !strings.EqualFold(scheme, "Bearer") || tok == "" {
				return domain.NewError(domain.KindUnauthorized, "authentication required")
			}
			p, err := res.ResolveToken(tok)
			if err != nil {
				return err
			}
			st.setPrincipal(p)
			return nil
		}

		if apiKeyHeader != "" {
			if key := r.Header.Get(apiKeyHeader); key != "" {
				p, err := res.ResolveAPIKey(key)
				if err != nil {
					return err
				}
				st.setPrincipal(p)
				return nil
			}
		}

		return domain.NewError(domain.KindUnauthorized, "authentication required")
	})
}
