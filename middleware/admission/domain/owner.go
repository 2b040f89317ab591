package domain

import "context"

// OwnerDirectory resolve o dono declarado de um recurso (ex: podcasts/42).
// Deve retornar ErrNotFound quando o recurso não existe.
type OwnerDirectory interface {
	Owner(ctx context.Context, kind, id string) (string, error)
}
