package application

import (
	"context"
	"time"

	"protection-relay/protection/domain"

	"github.com/shopspring/decimal"
)

// DefaultCallTimeout limita a chamada remota quando CallTimeout não é informado.
const DefaultCallTimeout = 10 * time.Second

// SerializedUpdater garante que escritas de preço na mesma variante nunca rodem
// ao mesmo tempo, e então executa a escrita remota.
//
// A exclusão vale só dentro deste processo: com várias réplicas, cada uma tem
// o seu próprio registro de travas.
type SerializedUpdater struct {
	Locks  domain.VariantLocker
	Writer domain.VariantWriter
	// AcquireTimeout <= 0 espera a trava até o ctx da request encerrar.
	AcquireTimeout time.Duration
	// CallTimeout <= 0 usa DefaultCallTimeout.
	CallTimeout time.Duration
}

// Update adquire a trava da variante, escreve o preço e libera a trava em
// qualquer caminho (sucesso, erro, timeout ou panic).
func (u SerializedUpdater) Update(ctx context.Context, variantID string, price decimal.Decimal) (domain.UpdatedVariant, error) {
	release, ok := u.acquire(ctx, variantID)
	if !ok {
		if err := ctx.Err(); err != nil {
			return domain.UpdatedVariant{}, err
		}
		return domain.UpdatedVariant{}, domain.ErrVariantBusy
	}
	defer release()

	timeout := u.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return u.Writer.UpdatePrice(callCtx, variantID, price)
}

func (u SerializedUpdater) acquire(ctx context.Context, key string) (func(), bool) {
	if u.Locks == nil {
		return func() {}, true
	}
	if u.AcquireTimeout <= 0 {
		return u.Locks.Acquire(ctx, key)
	}

	acqCtx, cancel := context.WithTimeout(ctx, u.AcquireTimeout)
	defer cancel()
	return u.Locks.Acquire(acqCtx, key)
}
