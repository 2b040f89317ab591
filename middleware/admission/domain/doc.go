// Package domain define contratos e tipos de domínio para controle de admissão:
// identidade (Principal), taxonomia de erros, configuração/estado de rate limit
// e as capacidades externas (contador compartilhado, diretório de donos, stats).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
