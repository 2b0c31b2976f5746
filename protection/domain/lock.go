package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// VariantLocker serializa operações por chave (id da variante).
//
// Mesma semântica de SlotPool, mas com uma vaga por chave: duas chamadas com a
// mesma chave nunca ficam ativas ao mesmo tempo; chaves diferentes não se esperam.
// Não há garantia de ordem FIFO entre quem espera.
type VariantLocker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool)
}
