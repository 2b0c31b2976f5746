package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"protection-relay/protection/domain"
)

// CreatePriceUpdatesTable é o schema esperado por MySQLStatsStore.
const CreatePriceUpdatesTable = `
CREATE TABLE IF NOT EXISTS protection_price_updates (
	id          BIGINT AUTO_INCREMENT PRIMARY KEY,
	variant_id  VARCHAR(64)   NOT NULL,
	mode        VARCHAR(16)   NOT NULL,
	price       DECIMAL(12,2) NOT NULL,
	success     BOOLEAN       NOT NULL,
	status      INT           NOT NULL DEFAULT 0,
	error       TEXT          NULL,
	duration_ms BIGINT        NOT NULL,
	created_at  DATETIME(3)   NOT NULL,
	INDEX idx_variant_created (variant_id, created_at)
)`

// MySQLStatsStore grava cada tentativa de atualização como linha de auditoria.
type MySQLStatsStore struct {
	db *sql.DB
}

func NewMySQLStatsStore(db *sql.DB) *MySQLStatsStore {
	return &MySQLStatsStore{db: db}
}

// Migrate cria a tabela se ainda não existir.
func (m *MySQLStatsStore) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, CreatePriceUpdatesTable); err != nil {
		return fmt.Errorf("create protection_price_updates: %w", err)
	}
	return nil
}

func (m *MySQLStatsStore) Record(ctx context.Context, ev domain.UpdateEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	var errText sql.NullString
	if ev.Err != "" {
		errText = sql.NullString{String: ev.Err, Valid: true}
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO protection_price_updates
			(variant_id, mode, price, success, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.VariantID, string(ev.Mode), ev.Price.StringFixed(2), ev.Success, ev.Status,
		errText, ev.Duration.Milliseconds(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert price update: %w", err)
	}
	return nil
}

// PriceUpdate é uma linha lida da auditoria.
type PriceUpdate struct {
	VariantID string
	Mode      string
	Price     string
	Success   bool
	Status    int
	CreatedAt time.Time
}

// Recent devolve as últimas `limit` tentativas da variante, mais novas primeiro.
func (m *MySQLStatsStore) Recent(ctx context.Context, variantID string, limit int) ([]PriceUpdate, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT variant_id, mode, price, success, status, created_at
		FROM protection_price_updates
		WHERE variant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, variantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query price updates: %w", err)
	}
	defer rows.Close()

	var out []PriceUpdate
	for rows.Next() {
		var u PriceUpdate
		if err := rows.Scan(&u.VariantID, &u.Mode, &u.Price, &u.Success, &u.Status, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan price update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
