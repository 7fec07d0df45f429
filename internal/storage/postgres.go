package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowguard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements the Storage interface using PostgreSQL via pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS limiters (
	identifier            TEXT PRIMARY KEY,
	min_retained_bps      BIGINT NOT NULL,
	limit_begin_threshold BIGINT NOT NULL,
	overridden            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS breaches (
	id                TEXT PRIMARY KEY,
	identifier        TEXT NOT NULL REFERENCES limiters(identifier),
	amount            BIGINT NOT NULL,
	settled_total     BIGINT NOT NULL,
	in_window_total   BIGINT NOT NULL,
	settlement_handle TEXT NOT NULL DEFAULT '',
	occurred_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_breaches_identifier ON breaches(identifier, occurred_at DESC);
`

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(context.Background(), config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Limiters returns all registered limiter configurations.
func (ps *PostgresStorage) Limiters(ctx context.Context) ([]*models.LimiterConfig, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at
		FROM limiters
		ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("failed to get limiters: %w", err)
	}
	defer rows.Close()

	var limiters []*models.LimiterConfig
	for rows.Next() {
		lc, err := scanLimiter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan limiter: %w", err)
		}
		limiters = append(limiters, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate limiters: %w", err)
	}

	if limiters == nil {
		limiters = []*models.LimiterConfig{}
	}

	return limiters, nil
}

// GetLimiter retrieves a limiter configuration by its identifier.
func (ps *PostgresStorage) GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error) {
	row := ps.pool.QueryRow(ctx, `
		SELECT identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at
		FROM limiters
		WHERE identifier = $1`, identifier)

	lc, err := scanLimiter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get limiter: %w", err)
	}

	return lc, nil
}

// SaveLimiter stores or updates a limiter configuration (upsert pattern).
func (ps *PostgresStorage) SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error {
	createdAt := limiter.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := limiter.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO limiters (identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identifier) DO UPDATE SET
			min_retained_bps = EXCLUDED.min_retained_bps,
			limit_begin_threshold = EXCLUDED.limit_begin_threshold,
			overridden = EXCLUDED.overridden,
			updated_at = EXCLUDED.updated_at`,
		limiter.Identifier,
		limiter.MinRetainedBps,
		limiter.LimitBeginThreshold,
		limiter.Overridden,
		timeToPgTimestamptz(createdAt),
		timeToPgTimestamptz(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save limiter: %w", err)
	}
	return nil
}

// SetOverridden toggles the manual bypass flag on a stored limiter.
func (ps *PostgresStorage) SetOverridden(ctx context.Context, identifier string, overridden bool) error {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE limiters SET overridden = $2, updated_at = $3
		WHERE identifier = $1`,
		identifier, overridden, timeToPgTimestamptz(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set overridden: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendBreach records one breach audit entry.
func (ps *PostgresStorage) AppendBreach(ctx context.Context, breach *models.BreachRecord) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO breaches (id, identifier, amount, settled_total, in_window_total, settlement_handle, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		breach.ID,
		breach.Identifier,
		breach.Amount,
		breach.SettledTotal,
		breach.InWindowTotal,
		breach.SettlementHandle,
		timeToPgTimestamptz(breach.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append breach: %w", err)
	}
	return nil
}

// Breaches returns the breach audit trail for an identifier, most recent first.
func (ps *PostgresStorage) Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, identifier, amount, settled_total, in_window_total, settlement_handle, occurred_at
		FROM breaches
		WHERE identifier = $1
		ORDER BY occurred_at DESC`, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to get breaches: %w", err)
	}
	defer rows.Close()

	breaches := []*models.BreachRecord{}
	for rows.Next() {
		var b models.BreachRecord
		var occurredAt pgtype.Timestamptz
		if err := rows.Scan(&b.ID, &b.Identifier, &b.Amount, &b.SettledTotal, &b.InWindowTotal, &b.SettlementHandle, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan breach: %w", err)
		}
		if occurredAt.Valid {
			b.OccurredAt = occurredAt.Time
		}
		breaches = append(breaches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breaches: %w", err)
	}

	return breaches, nil
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the storage connection.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

// Conversion helpers

func scanLimiter(row pgx.Row) (*models.LimiterConfig, error) {
	var lc models.LimiterConfig
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&lc.Identifier, &lc.MinRetainedBps, &lc.LimitBeginThreshold, &lc.Overridden, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		lc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		lc.UpdatedAt = updatedAt.Time
	}
	return &lc, nil
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
