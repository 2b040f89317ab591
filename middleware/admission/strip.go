package admission

import "net/http"

const (
	HeaderPrincipalID   = "X-Principal-Id"
	HeaderPrincipalRole = "X-Principal-Role"
)

// StripCredentials remove as credenciais brutas antes de encaminhar e repassa
// só a identidade resolvida. Headers X-Principal-* vindos do cliente são descartados.
func StripCredentials(apiKeyHeader string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.Clone(r.Context())
			r.Header.Del("Authorization")
			if apiKeyHeader != "" {
				r.Header.Del(apiKeyHeader)
			}
			r.Header.Del(HeaderPrincipalID)
			r.Header.Del(HeaderPrincipalRole)

			if p, ok := PrincipalFrom(r.Context()); ok {
				r.Header.Set(HeaderPrincipalID, p.ID)
				if p.Role != "" {
					r.Header.Set(HeaderPrincipalRole, string(p.Role))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
