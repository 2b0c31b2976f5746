package infra

import (
	"context"
	"sync"

	"protection-relay/protection/domain"
)

// VariantLocks é o registro por processo de travas por variante.
//
// Cada chave tem um chanPool de uma vaga. A entrada é criada no primeiro
// Acquire e removida quando não sobra ninguém segurando nem esperando, então o
// mapa só contém variantes com atualização em andamento.
//
// Quem espera não tem ordem garantida; só a exclusão mútua é garantida.
// O registro vive em memória: não coordena réplicas nem sobrevive a restart.
type VariantLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	pool domain.SlotPool
	refs int // holder + waiters
}

var _ domain.VariantLocker = (*VariantLocks)(nil)

func NewVariantLocks() *VariantLocks {
	return &VariantLocks{entries: make(map[string]*lockEntry)}
}

// Acquire bloqueia até a variante ficar livre ou o ctx encerrar.
// O release devolvido é idempotente.
func (l *VariantLocks) Acquire(ctx context.Context, key string) (func(), bool) {
	ent := l.ref(key)

	release, ok := ent.pool.Acquire(ctx)
	if !ok {
		l.unref(key, ent)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			l.unref(key, ent)
		})
	}, true
}

// Busy informa se há alguém segurando ou esperando a variante.
func (l *VariantLocks) Busy(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}

// Len devolve o número de variantes com trava ativa.
func (l *VariantLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *VariantLocks) ref(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[key]
	if !ok {
		ent = &lockEntry{pool: NewChanPool(1)}
		l.entries[key] = ent
	}
	ent.refs++
	return ent
}

func (l *VariantLocks) unref(key string, ent *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ent.refs--
	if ent.refs <= 0 && l.entries[key] == ent {
		delete(l.entries, key)
	}
}
