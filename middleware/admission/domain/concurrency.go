package domain

import "context"

// OutcomeBusy é o desfecho de um lance recusado por falta de vaga, antes de
// qualquer estágio do pipeline rodar.
const OutcomeBusy = "busy"

// SlotPool limita quantos lances ficam em processamento ao mesmo tempo.
//
// Acquire espera uma vaga até ctx encerrar; ok=false significa que nenhuma vaga
// foi tomada. release pode ser chamado mais de uma vez, só a primeira devolve
// a vaga.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InFlight() int
	Capacity() int
}
