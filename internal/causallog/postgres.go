package causallog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// PostgresLog persists causal entries in PostgreSQL. Entries carry a serial
// sequence so append order survives restarts.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog constructs a PostgreSQL-backed causal log.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Migrate creates the backing table if missing.
func (l *PostgresLog) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS causal_log (
		seq            BIGSERIAL PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE,
		entry          JSONB NOT NULL,
		appended_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate causal log: %w", err)
	}
	return nil
}

func (l *PostgresLog) Append(ctx context.Context, entry domain.CausalEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode causal entry: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO causal_log (transaction_id, entry) VALUES ($1, $2)`,
		string(entry.TransactionID), payload)
	if err != nil {
		return fmt.Errorf("append causal entry: %w", err)
	}
	return nil
}

func (l *PostgresLog) Entries(ctx context.Context, from, limit int) ([]domain.CausalEntry, error) {
	query := `SELECT entry FROM causal_log ORDER BY seq OFFSET $1`
	args := []any{from}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read causal log: %w", err)
	}
	defer rows.Close()

	var out []domain.CausalEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry domain.CausalEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode causal entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM causal_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count causal log: %w", err)
	}
	return n, nil
}
