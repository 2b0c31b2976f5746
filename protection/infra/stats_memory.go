package infra

import (
	"context"
	"sync"
	"time"

	"protection-relay/protection/domain"
)

type Counters struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// VariantStats resume as atualizações de uma variante.
type VariantStats struct {
	Counters
	LastPrice string    `json:"last_price,omitempty"`
	LastMode  string    `json:"last_mode,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatsSnapshot é a cópia servida em GET /stats.
type StatsSnapshot struct {
	Total     Counters                `json:"total"`
	ByMode    map[string]Counters     `json:"by_mode"`
	ByVariant map[string]VariantStats `json:"by_variant"`
}

// MemoryStatsStore é uma implementação simples em memória.
//
// Não faz expiração; a cardinalidade é o número de variantes, que é pequeno.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	byMode    map[string]Counters
	byVariant map[string]VariantStats
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byMode:    make(map[string]Counters),
		byVariant: make(map[string]VariantStats),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.UpdateEvent) error {
	mode := string(ev.Mode)

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.byMode[mode]
	v := s.byVariant[ev.VariantID]
	if ev.Success {
		s.total.Succeeded++
		m.Succeeded++
		v.Succeeded++
		v.LastPrice = ev.Price.StringFixed(2)
		v.LastMode = mode
		v.LastError = ""
	} else {
		s.total.Failed++
		m.Failed++
		v.Failed++
		v.LastError = ev.Err
	}
	v.UpdatedAt = ev.At
	s.byMode[mode] = m
	s.byVariant[ev.VariantID] = v
	return nil
}

func (s *MemoryStatsStore) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := StatsSnapshot{
		Total:     s.total,
		ByMode:    make(map[string]Counters, len(s.byMode)),
		ByVariant: make(map[string]VariantStats, len(s.byVariant)),
	}
	for k, v := range s.byMode {
		out.ByMode[k] = v
	}
	for k, v := range s.byVariant {
		out.ByVariant[k] = v
	}
	return out
}
