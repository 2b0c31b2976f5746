package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UpdateEvent registra uma tentativa de escrita de preço na variante remota.
//
// Só é emitido quando a entrada passou na validação; erros de entrada não
// chegam aqui porque nenhuma chamada remota é feita.
type UpdateEvent struct {
	VariantID string
	Mode      Mode
	Price     decimal.Decimal
	Success   bool
	// Status é o status HTTP remoto quando a falha foi um RemoteError.
	Status   int
	Err      string
	Duration time.Duration
	At       time.Time
}

// StatsStore é a estratégia de persistência para eventos de atualização.
//
// Implementações podem armazenar em Redis, MySQL, memória, Prometheus, etc.
// Quem chama deve tratar erro como best-effort (não derrubar a request).
type StatsStore interface {
	Record(ctx context.Context, ev UpdateEvent) error
}
