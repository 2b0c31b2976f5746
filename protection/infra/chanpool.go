package infra

import (
	"context"

	"protection-relay/protection/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um semáforo baseado em channel com capacidade `max`.
// Com max=1 vira uma trava exclusiva que respeita cancelamento de contexto.
func NewChanPool(max int) domain.SlotPool {
	if max < 1 {
		max = 1
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já encerrado não compete pela vaga, mesmo que ela esteja livre
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
