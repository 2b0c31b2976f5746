package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"protection-relay/protection"
	"protection-relay/protection/application"
	"protection-relay/protection/domain"
	"protection-relay/protection/infra"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "protection-relay"

func main() {
	src, err := newSource()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	cfg, err := readConfig(src)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	logger := newLogger(cfg.logLevel, cfg.logFormat)
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.jaegerEndpoint != "" {
		tp, err := infra.InitTracerProvider(serviceName, cfg.jaegerEndpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("tracing init error")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	adminOpts := []infra.AdminOption{infra.WithHTTPClient(&http.Client{Transport: transport})}
	if cfg.adminBaseURL != "" {
		adminOpts = append(adminOpts, infra.WithBaseURL(cfg.adminBaseURL))
	}
	admin := infra.NewAdminClient(cfg.storeDomain, cfg.apiVersion, cfg.accessToken, adminOpts...)

	updater := &application.SerializedUpdater{
		Locks:          infra.NewVariantLocks(),
		Writer:         admin,
		AcquireTimeout: cfg.lockAcquireTimeout,
		CallTimeout:    cfg.remoteCallTimeout,
	}

	memStats := infra.NewMemoryStatsStore()
	stores := []domain.StatsStore{memStats, infra.NewPrometheusStats(prometheus.DefaultRegisterer)}

	var shared protection.SharedPriceReader
	if cfg.statsRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.statsRedisAddr).Msg("redis stats ping error")
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
		)
		stores = append(stores, redisStats)
		shared = redisStats
	}

	var history protection.HistoryReader
	if cfg.statsMySQLDSN != "" {
		dsn, err := mysql.ParseDSN(cfg.statsMySQLDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid STATS_MYSQL_DSN")
		}
		// created_at é lido como time.Time
		dsn.ParseTime = true
		db, err := sql.Open("mysql", dsn.FormatDSN())
		if err != nil {
			logger.Fatal().Err(err).Msg("mysql open error")
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		audit := infra.NewMySQLStatsStore(db)
		migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = audit.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("mysql migrate error")
		}
		stores = append(stores, audit)
		history = audit
	}

	policy, err := application.NewPolicy(cfg.threshold, cfg.rate, cfg.base, cfg.fixedPrice)
	if err != nil {
		logger.Fatal().Err(err).Msg("pricing policy error")
	}

	svc := application.ProtectionService{
		Policy:           policy,
		Updater:          updater,
		Stats:            infra.NewFanoutStats(stores...),
		DefaultVariantID: cfg.defaultVariantID,
	}

	handler := &protection.Handler{
		Service:          svc,
		Stats:            memStats,
		History:          history,
		Shared:           shared,
		DefaultVariantID: cfg.defaultVariantID,
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	metrics := protection.NewMetrics(prometheus.DefaultRegisterer)

	h := http.Handler(mux)
	h = protection.ConcurrencyMiddleware(protection.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
		Metrics:        metrics,
	})(h)
	if cfg.rateEnabled {
		store := infra.NewLimiterStore(cfg.rateRPS, cfg.rateBurst,
			infra.WithIdleTTL(cfg.rateIdleTTL),
			infra.WithMaxKeys(cfg.rateMaxKeys),
			infra.WithEvictionHook(metrics.LimiterEvicted),
		)
		store.StartJanitor(ctx)
		h = protection.RateLimit(protection.RateLimitOptions{
			Store:               store,
			KeyHeader:           cfg.rateKeyHdr,
			TrustXForwardedFor:  cfg.trustXFF,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
			Metrics:             metrics,
		})(h)
	}
	h = protection.RequestLogger(logger, metrics)(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.listenAddr).
		Str("store", cfg.storeDomain).
		Str("api_version", cfg.apiVersion).
		Str("default_variant", cfg.defaultVariantID).
		Msg("protection relay listening")
	logger.Info().
		Str("threshold", cfg.threshold.String()).
		Str("rate", cfg.rate.String()).
		Str("base", cfg.base.String()).
		Str("fixed_price", cfg.fixedPrice.String()).
		Msg("pricing policy")
	logger.Info().
		Bool("enabled", cfg.rateEnabled).
		Float64("rps", cfg.rateRPS).
		Int("burst", cfg.rateBurst).
		Int("concurrency_max", cfg.concurrencyMax).
		Bool("redis_stats", cfg.statsRedisAddr != "").
		Bool("mysql_audit", cfg.statsMySQLDSN != "").
		Msg("limits")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// newLogger monta o logger base. LOG_FORMAT=console é para uso local.
func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var l zerolog.Logger
	if strings.EqualFold(format, "console") {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}
