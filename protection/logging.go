package protection

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger injeta no contexto um logger com request_id e o trace propagado
// pelo chamador, e registra uma linha por request ao final.
//
// Deve ser o middleware mais externo: os demais leem o logger via zerolog.Ctx.
func RequestLogger(base zerolog.Logger, metrics *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			logger := base.With().Str("request_id", reqID).Logger()
			ctx = logger.WithContext(ctx)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			metrics.observe(r.Method, routeLabel(r.URL.Path), rec.status, elapsed.Seconds())

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", elapsed).
				Msg("request completed")
		})
	}
}

// routeLabel limita a cardinalidade do label de rota às rotas conhecidas.
func routeLabel(path string) string {
	switch path {
	case "/update-protection", "/health", "/stats", "/history", "/metrics":
		return path
	default:
		return "other"
	}
}
