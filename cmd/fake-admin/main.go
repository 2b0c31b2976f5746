package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Admin API falsa para testes locais do relay:
//
//	SHOPIFY_ADMIN_BASE_URL=http://localhost:8081 go run ./cmd/relay
//
// FAKE_DELAY simula latência e FAKE_STATUS força uma resposta de erro.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := readConfig(os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newFakeAdmin(cfg, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.listenAddr).Dur("delay", cfg.delay).Int("forced_status", cfg.forcedStatus).Msg("fake admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

type config struct {
	listenAddr   string
	delay        time.Duration
	forcedStatus int
}

func readConfig(getenv func(string) string) (config, error) {
	cfg := config{listenAddr: ":8081"}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.listenAddr = v
	}
	if v := getenv("FAKE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return config{}, fmt.Errorf("FAKE_DELAY must be a non-negative duration, got %q", v)
		}
		cfg.delay = d
	}
	if v := getenv("FAKE_STATUS"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil || code < 100 || code > 599 {
			return config{}, fmt.Errorf("FAKE_STATUS must be an HTTP status code, got %q", v)
		}
		cfg.forcedStatus = code
	}
	return cfg, nil
}

type fakeAdmin struct {
	cfg    config
	logger zerolog.Logger

	mu     sync.Mutex
	prices map[string]string
}

func newFakeAdmin(cfg config, logger zerolog.Logger) *fakeAdmin {
	return &fakeAdmin{cfg: cfg, logger: logger, prices: map[string]string{}}
}

func (a *fakeAdmin) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /admin/api/{version}/variants/{file}", a.updateVariant)
	mux.HandleFunc("GET /variants", a.listPrices)
	return mux
}

func (a *fakeAdmin) updateVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := trimJSONSuffix(r.PathValue("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	if a.cfg.delay > 0 {
		select {
		case <-time.After(a.cfg.delay):
		case <-r.Context().Done():
			return
		}
	}
	if a.cfg.forcedStatus != 0 {
		a.logger.Warn().Str("variant_id", id).Int("status", a.cfg.forcedStatus).Msg("forced error")
		writeJSON(w, a.cfg.forcedStatus, map[string]any{"errors": "forced by FAKE_STATUS"})
		return
	}

	var body struct {
		Variant struct {
			ID    json.Number `json:"id"`
			Price string      `json:"price"`
		} `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": "invalid json"})
		return
	}
	price, err := decimal.NewFromString(body.Variant.Price)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": map[string][]string{"price": {"must be a number"}}})
		return
	}

	// o remoto guarda com duas casas, como a loja real
	stored := price.StringFixed(2)
	a.mu.Lock()
	a.prices[id] = stored
	a.mu.Unlock()

	a.logger.Info().
		Str("version", r.PathValue("version")).
		Str("variant_id", id).
		Str("price", stored).
		Str("token", mask(r.Header.Get("X-Shopify-Access-Token"))).
		Msg("variant updated")
	writeJSON(w, http.StatusOK, map[string]any{"variant": map[string]any{"id": json.Number(id), "price": stored}})
}

func (a *fakeAdmin) listPrices(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	writeJSON(w, http.StatusOK, a.prices)
}

func trimJSONSuffix(file string) (string, bool) {
	const suffix = ".json"
	if len(file) <= len(suffix) || file[len(file)-len(suffix):] != suffix {
		return "", false
	}
	id := file[:len(file)-len(suffix)]
	for _, c := range id {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return id, true
}

func mask(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
