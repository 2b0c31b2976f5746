// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - VariantLocks: registro de travas por variante (chanPool de uma vaga por chave)
//   - AdminClient: escrita do preço na API admin da loja
//   - LimiterStore: token bucket por cliente (golang.org/x/time/rate) com teto de clientes
//   - *StatsStore: eventos de atualização em memória, Redis, MySQL e Prometheus
package infra
