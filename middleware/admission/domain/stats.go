package domain

import (
	"context"
	"time"
)

// StatsEvent representa o resultado de uma passagem pelo pipeline de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Pipeline string
	// Stage é o estágio que encerrou a requisição; vazio quando admitida.
	Stage string
	// Outcome é "admitted" ou o Kind da rejeição.
	Outcome string
	Key     string

	Degraded bool

	Method string
	Path   string

	At       time.Time
	Duration time.Duration
}

const OutcomeAdmitted = "admitted"

func (ev StatsEvent) Allowed() bool { return ev.Outcome == OutcomeAdmitted }

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O pipeline trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
