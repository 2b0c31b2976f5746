package protection

import (
	"net"
	"net/http"
	"strings"
	"time"

	"protection-relay/protection/application"
	"protection-relay/protection/domain"

	"github.com/rs/zerolog"
)

type KeyFunc func(r *http.Request) string

// RateLimitOptions configura o rate limit por cliente do endpoint de escrita.
type RateLimitOptions struct {
	Store               domain.LimiterStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Metrics             *Metrics
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// RateLimit bloqueia com 429 quem passar do limite. GETs (health, stats,
// metrics) passam direto: só escritas consomem tokens.
func RateLimit(opts RateLimitOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	throttle := application.Throttle{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := throttle.Decide(domain.ClientKey(key))
			if !dec.Allowed {
				opts.Metrics.incThrottled()
				zerolog.Ctx(r.Context()).Warn().Str("client", key).Msg("rate limited")
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, updateResponse{Error: "too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
