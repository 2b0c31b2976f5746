// Package domain define contratos e tipos de domínio para a precificação da
// taxa de proteção e para a atualização serializada da variante remota.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (cliente da API admin, Redis, MySQL).
package domain
