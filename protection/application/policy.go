package application

import (
	"fmt"

	"protection-relay/protection/domain"

	"github.com/shopspring/decimal"
)

// Policy é a regra de preço da taxa de proteção.
//
// É uma função pura: não faz I/O e pode ser testada isolada da chamada remota.
//
// Threshold, Rate e FixedPrice com valor zero são tratados como "não
// configurado" e recebem os valores de DefaultPolicy; Base zero é mantido.
// Para rejeitar uma configuração inválida em vez de cair no padrão, use
// NewPolicy.
type Policy struct {
	Threshold  decimal.Decimal
	Rate       decimal.Decimal
	Base       decimal.Decimal
	FixedPrice decimal.Decimal
}

// DefaultPolicy: abaixo de 100.00 cobra 2.17 fixo, acima cobra 3% + 0.01.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:  decimal.RequireFromString("100.00"),
		Rate:       decimal.RequireFromString("0.03"),
		Base:       decimal.RequireFromString("0.01"),
		FixedPrice: decimal.RequireFromString("2.17"),
	}
}

// NewPolicy valida os parâmetros: Threshold, Rate e FixedPrice > 0, Base >= 0,
// todos dentro de domain.AmountInRange.
func NewPolicy(threshold, rate, base, fixedPrice decimal.Decimal) (Policy, error) {
	switch {
	case !threshold.IsPositive():
		return Policy{}, fmt.Errorf("policy threshold must be > 0, got %s", threshold)
	case !rate.IsPositive():
		return Policy{}, fmt.Errorf("policy rate must be > 0, got %s", rate)
	case base.IsNegative():
		return Policy{}, fmt.Errorf("policy base must be >= 0, got %s", base)
	case !fixedPrice.IsPositive():
		return Policy{}, fmt.Errorf("policy fixed price must be > 0, got %s", fixedPrice)
	}
	for _, d := range []decimal.Decimal{threshold, rate, base, fixedPrice} {
		if !domain.AmountInRange(d) {
			return Policy{}, fmt.Errorf("policy value out of range: %s", d)
		}
	}
	return Policy{Threshold: threshold, Rate: rate, Base: base, FixedPrice: fixedPrice}, nil
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Threshold.IsZero() {
		p.Threshold = def.Threshold
	}
	if p.Rate.IsZero() {
		p.Rate = def.Rate
	}
	if p.FixedPrice.IsZero() {
		p.FixedPrice = def.FixedPrice
	}
	// Base zero é um valor legítimo, não recebe padrão aqui.
	return p
}

// Price aplica as regras na ordem: reset, validação do subtotal, faixa fixa,
// faixa dinâmica. Exatamente uma delas produz o resultado.
//
// O preço de reset é devolvido sem arredondar; quem formata com duas casas é a
// camada da chamada remota. O preço dinâmico é arredondado half-up em 2 casas.
func (p Policy) Price(req domain.PriceUpdateRequest) (domain.Quote, error) {
	p = p.withDefaults()

	switch r := req.(type) {
	case domain.ResetRequest:
		if !r.NewPrice.IsPositive() {
			return domain.Quote{}, domain.InvalidInputf("new_price must be a number greater than 0")
		}
		if !domain.AmountInRange(r.NewPrice) {
			return domain.Quote{}, domain.InvalidInputf("new_price must be at most %s", domain.MaxAmount.StringFixed(2))
		}
		return domain.Quote{
			Mode:  domain.ModeReset,
			Price: r.NewPrice,
			Note:  fmt.Sprintf("manual reset to %s", r.NewPrice.StringFixed(2)),
		}, nil

	case domain.CalculateRequest:
		if r.Subtotal.IsNegative() {
			return domain.Quote{}, domain.InvalidInputf("subtotal must be a number greater than or equal to 0")
		}
		if !domain.AmountInRange(r.Subtotal) {
			return domain.Quote{}, domain.InvalidInputf("subtotal must be at most %s", domain.MaxAmount.StringFixed(2))
		}
		if r.Subtotal.LessThan(p.Threshold) {
			return domain.Quote{
				Mode:  domain.ModeFixed,
				Price: p.FixedPrice,
				Note:  fmt.Sprintf("subtotal below %s: fixed fee %s", p.Threshold.StringFixed(2), p.FixedPrice.StringFixed(2)),
			}, nil
		}
		// decimal.Round arredonda half away from zero, que no domínio >= 0 é half-up.
		price := r.Subtotal.Mul(p.Rate).Add(p.Base).Round(2)
		return domain.Quote{
			Mode:  domain.ModeDynamic,
			Price: price,
			Note:  fmt.Sprintf("%s%% of subtotal + %s", p.Rate.Shift(2).String(), p.Base.StringFixed(2)),
		}, nil

	default:
		return domain.Quote{}, domain.InvalidInputf("unsupported request type %T", req)
	}
}
