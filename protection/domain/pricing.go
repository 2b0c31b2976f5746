package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput marca qualquer falha de validação de entrada.
// Nenhuma chamada remota é feita quando ela aparece.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputf cria um erro de validação que casa com errors.Is(err, ErrInvalidInput).
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// MaxAmount é o maior subtotal ou preço aceito.
var MaxAmount = decimal.New(1, 12)

// maxAmountScale limita as casas decimais aceitas.
const maxAmountScale = 64

// AmountInRange diz se d é um valor de moeda utilizável: |d| <= MaxAmount e
// no máximo maxAmountScale casas decimais.
//
// O expoente é checado antes de comparar: com 1e2000000 a comparação (e
// qualquer Mul/Round/StringFixed) teria que materializar milhões de dígitos.
func AmountInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > MaxAmount.Exponent() || exp < -maxAmountScale {
		return false
	}
	return d.Abs().LessThanOrEqual(MaxAmount)
}

// Mode identifica qual regra de preço foi aplicada.
type Mode string

const (
	ModeReset   Mode = "reset"
	ModeFixed   Mode = "fixed"
	ModeDynamic Mode = "dynamic"
)

// PriceUpdateRequest é a união de ResetRequest e CalculateRequest.
//
// O método privado fecha a união: só os dois tipos deste pacote a implementam.
type PriceUpdateRequest interface {
	Variant() string
	priceUpdate()
}

// ResetRequest ignora o cálculo e define o preço informado diretamente.
type ResetRequest struct {
	NewPrice  decimal.Decimal
	VariantID string
}

func (r ResetRequest) Variant() string { return r.VariantID }
func (ResetRequest) priceUpdate()      {}

// CalculateRequest calcula o preço a partir do subtotal do pedido.
type CalculateRequest struct {
	Subtotal  decimal.Decimal
	VariantID string
}

func (r CalculateRequest) Variant() string { return r.VariantID }
func (CalculateRequest) priceUpdate()      {}

// Quote é a saída da política de preço, antes da escrita remota.
type Quote struct {
	Mode  Mode
	Price decimal.Decimal
	Note  string
}

// PricingResult é o que o endpoint devolve em caso de sucesso.
type PricingResult struct {
	VariantID string
	NewPrice  decimal.Decimal
	Note      string
}
