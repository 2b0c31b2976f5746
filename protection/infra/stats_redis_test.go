package infra

import (
	"context"
	"os"
	"testing"

	"protection-relay/protection/domain"

	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisStatsStore_RecordsCountersAndLastPrice(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	prefix := "test:protection:stats"
	keys, _ := client.Keys(ctx, prefix+":*").Result()
	if len(keys) > 0 {
		client.Del(ctx, keys...)
	}

	s := NewRedisStatsStore(client, WithStatsPrefix(prefix+":"), WithStatsBucket("none"))

	if err := s.Record(ctx, event("77", domain.ModeDynamic, "4.51", true)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, event("77", domain.ModeDynamic, "9", false)); err != nil {
		t.Fatalf("record: %v", err)
	}

	total, err := client.HGetAll(ctx, prefix+":total").Result()
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if total["succeeded"] != "1" || total["failed"] != "1" {
		t.Fatalf("unexpected totals %v", total)
	}

	price, ok, err := s.LastPrice(ctx, "77")
	if err != nil || !ok || price != "4.51" {
		t.Fatalf("expected last price 4.51, got %q ok=%v err=%v", price, ok, err)
	}

	if _, ok, _ := s.LastPrice(ctx, "missing"); ok {
		t.Fatalf("expected no last price for unknown variant")
	}
}

func TestRedisStatsStore_NilIsNoop(t *testing.T) {
	var s *RedisStatsStore
	if err := s.Record(context.Background(), event("1", domain.ModeFixed, "2.17", true)); err != nil {
		t.Fatalf("expected nil store to be a no-op, got %v", err)
	}
}
