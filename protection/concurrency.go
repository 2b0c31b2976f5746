package protection

import (
	"context"
	"net/http"
	"time"

	"protection-relay/protection/domain"
	"protection-relay/protection/infra"

	"github.com/rs/zerolog"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	Metrics        *Metrics
}

// ConcurrencyMiddleware limita o total de requests em voo no processo,
// independente da variante. Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	pool := infra.NewChanPool(opts.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := acquireSlot(r, pool, opts.AcquireTimeout)
			if !ok {
				opts.Metrics.incOverloaded()
				zerolog.Ctx(r.Context()).Warn().Int("max", opts.Max).Msg("in-flight limit reached")
				writeJSON(w, http.StatusServiceUnavailable, updateResponse{Error: "server busy"})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

// acquireSlot: timeout <= 0 espera até a request encerrar.
func acquireSlot(r *http.Request, pool domain.SlotPool, timeout time.Duration) (func(), bool) {
	if timeout <= 0 {
		return pool.Acquire(r.Context())
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	return pool.Acquire(ctx)
}
