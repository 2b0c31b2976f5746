package infra

import (
	"context"
	"errors"

	"protection-relay/protection/domain"
)

// FanoutStats repassa cada evento para todos os stores configurados.
// Um store com erro não impede os demais; os erros voltam juntos.
type FanoutStats []domain.StatsStore

func NewFanoutStats(stores ...domain.StatsStore) FanoutStats {
	out := make(FanoutStats, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f FanoutStats) Record(ctx context.Context, ev domain.UpdateEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
