package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"protection-relay/protection/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de atualização em Redis, compartilhados
// entre réplicas. Só estatística: a trava por variante continua local.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas nos buckets por minuto.
	// total e por variante são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "protection:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.UpdateEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "failed"
	if ev.Success {
		field = "succeeded"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if ev.Mode != "" {
		pipe.HIncrBy(ctx, s.prefix+":mode", string(ev.Mode)+":"+field, 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if v := strings.TrimSpace(ev.VariantID); v != "" {
		variantKey := s.prefix + ":variant:" + v
		pipe.HIncrBy(ctx, variantKey, field, 1)
		if ev.Success {
			pipe.HSet(ctx, variantKey,
				"last_price", ev.Price.StringFixed(2),
				"last_mode", string(ev.Mode),
				"updated_at", at.UTC().Format(time.RFC3339),
			)
		} else {
			pipe.HSet(ctx, variantKey, "last_error", ev.Err)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// LastPrice devolve o último preço gravado com sucesso para a variante.
// ok=false quando não há registro.
func (s *RedisStatsStore) LastPrice(ctx context.Context, variantID string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.prefix+":variant:"+variantID, "last_price").Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
