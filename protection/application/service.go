package application

import (
	"context"
	"errors"
	"time"

	"protection-relay/protection/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceUpdater é o contrato que ProtectionService espera do SerializedUpdater.
type PriceUpdater interface {
	Update(ctx context.Context, variantID string, price decimal.Decimal) (domain.UpdatedVariant, error)
}

// ProtectionService concentra o caso de uso: calcular o preço, escrever na
// variante e registrar o evento. Não sabe nada sobre HTTP.
type ProtectionService struct {
	Policy  Policy
	Updater PriceUpdater
	Stats   domain.StatsStore
	// DefaultVariantID é usado quando a request não informa variante.
	DefaultVariantID string

	now func() time.Time
}

func (s ProtectionService) Apply(ctx context.Context, req domain.PriceUpdateRequest) (domain.PricingResult, error) {
	variantID := req.Variant()
	if variantID == "" {
		variantID = s.DefaultVariantID
	}
	if variantID == "" {
		return domain.PricingResult{}, domain.InvalidInputf("variant_id is required (no default configured)")
	}

	quote, err := s.Policy.Price(req)
	if err != nil {
		return domain.PricingResult{}, err
	}

	log := zerolog.Ctx(ctx).With().
		Str("variant_id", variantID).
		Str("mode", string(quote.Mode)).
		Str("price", quote.Price.StringFixed(2)).
		Logger()

	start := s.clock()
	updated, err := s.Updater.Update(ctx, variantID, quote.Price)
	ev := domain.UpdateEvent{
		VariantID: variantID,
		Mode:      quote.Mode,
		Price:     quote.Price,
		Success:   err == nil,
		Duration:  s.clock().Sub(start),
		At:        start,
	}
	if err != nil {
		ev.Err = err.Error()
		var re *domain.RemoteError
		if errors.As(err, &re) {
			ev.Status = re.Status
		}
	}
	s.record(ctx, ev)

	if err != nil {
		log.Error().Err(err).Dur("duration", ev.Duration).Msg("protection price update failed")
		return domain.PricingResult{}, err
	}
	log.Info().Str("remote_price", updated.Price).Dur("duration", ev.Duration).Msg("protection price updated")

	return domain.PricingResult{
		VariantID: firstNonEmpty(updated.ID, variantID),
		NewPrice:  storedPrice(updated.Price, quote.Price),
		Note:      quote.Note,
	}, nil
}

func (s ProtectionService) record(ctx context.Context, ev domain.UpdateEvent) {
	if s.Stats == nil {
		return
	}
	// a request já pode ter sido cancelada; o registro não deve depender dela.
	if err := s.Stats.Record(context.WithoutCancel(ctx), ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("stats record failed")
	}
}

func (s ProtectionService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// storedPrice prefere o preço como o remoto armazenou; se não for numérico,
// cai no preço calculado com duas casas.
func storedPrice(remote string, fallback decimal.Decimal) decimal.Decimal {
	if remote != "" {
		if d, err := decimal.NewFromString(remote); err == nil {
			return d.Round(2)
		}
	}
	return fallback.Round(2)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
