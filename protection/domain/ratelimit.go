package domain

import "time"

// ClientKey identifica quem chama o endpoint (IP, header de API key, etc).
type ClientKey string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave de cliente.
type LimiterStore interface {
	Get(ClientKey) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
}
