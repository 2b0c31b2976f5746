package infra

import (
	"context"
	"sync"
	"time"

	"protection-relay/protection/domain"

	"golang.org/x/time/rate"
)

// EvictionHook recebe o motivo da remoção ("idle" ou "capacity") e quantos
// clientes saíram. cmd/relay liga em protection.Metrics.
type EvictionHook func(reason string, n int)

// LimiterStore guarda um token bucket (x/time/rate) por cliente do endpoint
// de escrita.
//
// O número de clientes acompanhados tem teto (maxKeys): com TRUST_XFF ou
// RATE_KEY_HEADER a chave vem do próprio cliente e o mapa cresceria sem
// limite. Ao atingir o teto, sai o cliente parado há mais tempo.
type LimiterStore struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	maxKeys      int

	now     func() time.Time
	onEvict EvictionHook
}

// clientBucket implementa domain.Limiter consumindo tokens no relógio do store.
type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	now      func() time.Time
}

func (b *clientBucket) Allow() bool { return b.lim.AllowN(b.now(), 1) }

type LimiterOption func(*LimiterStore)

func WithIdleTTL(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.cleanupEvery = d }
}

// WithMaxKeys limita quantos clientes ficam em memória. n <= 0 desliga o teto.
func WithMaxKeys(n int) LimiterOption {
	return func(s *LimiterStore) { s.maxKeys = n }
}

func WithEvictionHook(h EvictionHook) LimiterOption {
	return func(s *LimiterStore) { s.onEvict = h }
}

// WithClock troca time.Now (testes).
func WithClock(now func() time.Time) LimiterOption {
	return func(s *LimiterStore) { s.now = now }
}

func NewLimiterStore(rps float64, burst int, opts ...LimiterOption) *LimiterStore {
	s := &LimiterStore{
		clients:      make(map[string]*clientBucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		maxKeys:      10000,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LimiterStore) RPS() float64 { return float64(s.rps) }
func (s *LimiterStore) Burst() int   { return s.burst }

// Len devolve quantos clientes estão sendo acompanhados.
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Get implementa domain.LimiterStore.
func (s *LimiterStore) Get(key domain.ClientKey) domain.Limiter {
	b, evicted := s.touch(string(key))
	s.report("capacity", evicted)
	return b
}

func (s *LimiterStore) touch(key string) (*clientBucket, int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.clients[key]; ok {
		b.lastSeen = now
		return b, 0
	}

	evicted := 0
	for s.maxKeys > 0 && len(s.clients) >= s.maxKeys {
		s.evictStalestLocked()
		evicted++
	}

	b := &clientBucket{lim: rate.NewLimiter(s.rps, s.burst), lastSeen: now, now: s.now}
	s.clients[key] = b
	return b, evicted
}

// evictStalestLocked é O(n); só roda quando o teto é atingido.
func (s *LimiterStore) evictStalestLocked() {
	var (
		stalest string
		oldest  time.Time
		found   bool
	)
	for k, b := range s.clients {
		if !found || b.lastSeen.Before(oldest) {
			stalest, oldest, found = k, b.lastSeen, true
		}
	}
	if found {
		delete(s.clients, stalest)
	}
}

// Cleanup remove clientes sem requests há mais de idleTTL e devolve quantos saíram.
func (s *LimiterStore) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	n := 0
	for k, b := range s.clients {
		if b.lastSeen.Before(cutoff) {
			delete(s.clients, k)
			n++
		}
	}
	s.mu.Unlock()

	s.report("idle", n)
	return n
}

func (s *LimiterStore) report(reason string, n int) {
	if n > 0 && s.onEvict != nil {
		s.onEvict(reason, n)
	}
}

// StartJanitor roda Cleanup periodicamente até o ctx encerrar.
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
