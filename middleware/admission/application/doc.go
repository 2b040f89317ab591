// Package application contém os casos de uso (regras de aplicação) do controle
// de admissão: resolução de identidade, checagem de acesso, limiters de janela
// fixa (padrão, fast path de lances e por endpoint) e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: WindowLimiter.Allow(ctx, key) retorna uma domain.Decision.
package application
