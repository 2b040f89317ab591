// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore / MemcacheCounterStore: contador compartilhado entre processos
//   - MemoryCounterStore: contador local (fallback e desenvolvimento)
//   - RedisOwnerDirectory: dono declarado de recursos
//   - RedisStatsStore / PrometheusStats: estatísticas de admissão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
