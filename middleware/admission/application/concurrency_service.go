package application

import (
	"context"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// ConcurrencyService decide se um lance ganha vaga no pool, aplicando a política
// de espera. Pool nil desliga o limite.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout:
	//   < 0  não espera: sem vaga livre, rejeita na hora (orçamento de latência do lance)
	//   == 0 espera até o ctx da requisição encerrar
	//   > 0  espera no máximo esse tempo
	AcquireTimeout time.Duration
}

// Acquire retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	switch {
	case s.AcquireTimeout == 0:
		return s.Pool.Acquire(ctx)
	case s.AcquireTimeout < 0:
		// ctx já cancelado: o pool só entrega vaga se houver uma livre agora
		now, cancel := context.WithCancel(ctx)
		cancel()
		return s.Pool.Acquire(now)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// InFlight e Capacity descrevem o pool para log e estatística; zero sem pool.
func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InFlight()
}

func (s ConcurrencyService) Capacity() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.Capacity()
}
