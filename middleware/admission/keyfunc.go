package admission

import (
	"net"
	"net/http"
	"strings"
)

type KeyFunc func(r *http.Request) string

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// RouteKeyFunc é a chave padrão da política standard: cliente + path.
func RouteKeyFunc(client KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		return client(r) + ":" + r.URL.Path
	}
}

// PrincipalKeyFunc usa o id do Principal já resolvido; sem identidade, cai em fallback.
// Só faz sentido depois do estágio de identidade.
func PrincipalKeyFunc(fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if p, ok := PrincipalFrom(r.Context()); ok {
			return "user:" + p.ID
		}
		return fallback(r)
	}
}
