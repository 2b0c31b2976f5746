package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrVariantBusy indica que a trava da variante não foi obtida a tempo.
var ErrVariantBusy = errors.New("variant busy: price update lock not acquired")

// UpdatedVariant é a representação canônica devolvida pela API admin.
// Price vem como o sistema remoto armazenou (pode ter sido renormalizado).
type UpdatedVariant struct {
	ID    string
	Price string
}

// VariantWriter executa a escrita do preço no sistema remoto.
type VariantWriter interface {
	UpdatePrice(ctx context.Context, variantID string, price decimal.Decimal) (UpdatedVariant, error)
}

// RemoteError é devolvido quando a API admin responde com status fora de 2xx.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote admin API returned status %d", e.Status)
	}
	return fmt.Sprintf("remote admin API returned status %d: %s", e.Status, e.Body)
}
