package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"protection-relay/protection/infra"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr string

	accessToken      string
	storeDomain      string
	apiVersion       string
	adminBaseURL     string
	defaultVariantID string

	threshold  decimal.Decimal
	rate       decimal.Decimal
	base       decimal.Decimal
	fixedPrice decimal.Decimal

	lockAcquireTimeout time.Duration
	remoteCallTimeout  time.Duration

	rateEnabled bool
	rateRPS     float64
	rateBurst   int
	rateKeyHdr  string
	trustXFF    bool
	retryAfter  time.Duration
	addHeaders  bool
	rateIdleTTL time.Duration
	rateMaxKeys int

	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsMySQLDSN      string

	jaegerEndpoint string
	logLevel       string
	logFormat      string
}

// source resolve uma chave: variável de ambiente primeiro, depois o arquivo
// YAML (CONFIG_FILE), depois o default de cada getter.
type source struct {
	lookupEnv func(string) (string, bool)
	file      map[string]string
}

func newSource() (source, error) {
	src := source{lookupEnv: os.LookupEnv}
	if path, ok := os.LookupEnv("CONFIG_FILE"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return source{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		file, err := parseConfigFile(raw)
		if err != nil {
			return source{}, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
		src.file = file
	}
	return src, nil
}

// parseConfigFile aceita um mapa plano com as mesmas chaves das variáveis de
// ambiente (maiúsculas ou minúsculas).
func parseConfigFile(raw []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) get(k string) string {
	if s.lookupEnv != nil {
		if v, ok := s.lookupEnv(k); ok && v != "" {
			return v
		}
	}
	return s.file[k]
}

func readConfig(src source) (config, error) {
	cfg := config{}
	cfg.listenAddr = src.getDefault("LISTEN_ADDR", "")
	if cfg.listenAddr == "" {
		cfg.listenAddr = ":" + src.getDefault("PORT", "3000")
	}

	cfg.accessToken = src.get("SHOPIFY_ACCESS_TOKEN")
	cfg.storeDomain = src.get("SHOPIFY_STORE_DOMAIN")
	cfg.apiVersion = src.getDefault("SHOPIFY_API_VERSION", "2024-01")
	cfg.adminBaseURL = src.get("SHOPIFY_ADMIN_BASE_URL")
	cfg.defaultVariantID = src.get("DEFAULT_VARIANT_ID")

	var err error
	if cfg.threshold, err = src.getDecimalDefault("PROTECTION_THRESHOLD", "100.00"); err != nil {
		return config{}, err
	}
	if cfg.rate, err = src.getDecimalDefault("PROTECTION_RATE", "0.03"); err != nil {
		return config{}, err
	}
	if cfg.base, err = src.getDecimalDefault("PROTECTION_BASE", "0.01"); err != nil {
		return config{}, err
	}
	if cfg.fixedPrice, err = src.getDecimalDefault("PROTECTION_FIXED_PRICE", "2.17"); err != nil {
		return config{}, err
	}

	cfg.lockAcquireTimeout = src.getDurationDefault("LOCK_ACQUIRE_TIMEOUT", 0)
	cfg.remoteCallTimeout = src.getDurationDefault("REMOTE_CALL_TIMEOUT", 10*time.Second)

	cfg.rateEnabled = src.getBoolDefault("RATE_ENABLED", false)
	cfg.rateRPS = src.getFloatDefault("RATE_RPS", 5)
	cfg.rateBurst = src.getIntDefault("RATE_BURST", 10)
	cfg.rateKeyHdr = src.get("RATE_KEY_HEADER")
	cfg.trustXFF = src.getBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = src.getDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = src.getBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.rateIdleTTL = src.getDurationDefault("RATE_IDLE_TTL", 15*time.Minute)
	cfg.rateMaxKeys = src.getIntDefault("RATE_MAX_KEYS", 10000)

	cfg.concurrencyMax = src.getIntDefault("CONCURRENCY_MAX", 0)
	cfg.concurrencyTimeout = src.getDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsRedisAddr = src.get("STATS_REDIS_ADDR")
	cfg.statsRedisPassword = src.get("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = src.getIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = src.getDefault("STATS_PREFIX", "protection:stats")
	cfg.statsTTL = src.getDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = src.getDefault("STATS_BUCKET", "minute")
	cfg.statsMySQLDSN = src.get("STATS_MYSQL_DSN")

	cfg.jaegerEndpoint = src.get("JAEGER_ENDPOINT")
	cfg.logLevel = src.getDefault("LOG_LEVEL", "info")
	cfg.logFormat = src.getDefault("LOG_FORMAT", "json")

	if strings.TrimSpace(cfg.accessToken) == "" {
		return config{}, errors.New("SHOPIFY_ACCESS_TOKEN is required")
	}
	if strings.TrimSpace(cfg.storeDomain) == "" && cfg.adminBaseURL == "" {
		return config{}, errors.New("SHOPIFY_STORE_DOMAIN is required")
	}
	if cfg.defaultVariantID != "" {
		id, ok := infra.NumericVariantID(cfg.defaultVariantID)
		if !ok {
			return config{}, fmt.Errorf("DEFAULT_VARIANT_ID must be numeric, got %q", cfg.defaultVariantID)
		}
		cfg.defaultVariantID = id
	} else {
		return config{}, errors.New("DEFAULT_VARIANT_ID is required")
	}
	if !cfg.threshold.IsPositive() {
		return config{}, errors.New("PROTECTION_THRESHOLD must be > 0")
	}
	if !cfg.rate.IsPositive() {
		return config{}, errors.New("PROTECTION_RATE must be > 0")
	}
	if cfg.base.IsNegative() {
		return config{}, errors.New("PROTECTION_BASE must be >= 0")
	}
	if !cfg.fixedPrice.IsPositive() {
		return config{}, errors.New("PROTECTION_FIXED_PRICE must be > 0")
	}
	if cfg.rateEnabled && cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateEnabled && cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func (s source) getDefault(k, def string) string {
	if v := s.get(k); v != "" {
		return v
	}
	return def
}

func (s source) getIntDefault(k string, def int) int {
	v := s.get(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (s source) getFloatDefault(k string, def float64) float64 {
	v := s.get(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (s source) getBoolDefault(k string, def bool) bool {
	v := s.get(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s source) getDurationDefault(k string, def time.Duration) time.Duration {
	v := s.get(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getDecimalDefault falha em vez de cair no default: um preço mal digitado
// não deve virar silenciosamente outra política.
func (s source) getDecimalDefault(k, def string) (decimal.Decimal, error) {
	v := s.get(k)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number, got %q", k, v)
	}
	return d, nil
}
