package domain

import "time"

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleAdvertiser Role = "advertiser"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePublisher, RoleAdvertiser, RoleAdmin:
		return true
	}
	return false
}

// Principal é a identidade verificada anexada a uma requisição.
//
// Só existe durante uma requisição e nunca é persistido por este subsistema.
// Service=true indica uma identidade de serviço resolvida por API key (sem Role).
type Principal struct {
	ID        string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	Service   bool
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
