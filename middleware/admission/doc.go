// Package admission fornece os adapters HTTP (net/http) do controle de admissão.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (identidade, acesso, limiters, concorrência) sem net/http
//   - infra: implementações concretas (Redis, Memcached, memória, Prometheus)
//   - admission (este pacote): pipeline de estágios + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. O Pipeline roda os estágios na ordem configurada (ex: identidade → acesso → rate)
//  2. O primeiro estágio que rejeita encerra a requisição com status + JSON {"error": ...}
//  3. Se todos admitem, chama o próximo handler (ex: reverse proxy) com o Principal no contexto
//  4. Ao final, hooks de conclusão recebem o status final (skipSuccessful/skipFailed)
//
// Na rota de lances a ordem é invertida (rate rápido → identidade): rejeitar uma
// enxurrada sem autenticação é mais barato do que verificá-la.
package admission
