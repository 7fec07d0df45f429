package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowguard/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface using SQLite. It is a
// lightweight single-file backend suitable for single-node deployments.
type SQLiteStorage struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS limiters (
	identifier            TEXT PRIMARY KEY,
	min_retained_bps      INTEGER NOT NULL,
	limit_begin_threshold INTEGER NOT NULL,
	overridden            INTEGER NOT NULL DEFAULT 0,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS breaches (
	id                TEXT PRIMARY KEY,
	identifier        TEXT NOT NULL,
	amount            INTEGER NOT NULL,
	settled_total     INTEGER NOT NULL,
	in_window_total   INTEGER NOT NULL,
	settlement_handle TEXT NOT NULL DEFAULT '',
	occurred_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_breaches_identifier ON breaches(identifier, occurred_at DESC);
`

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Limiters returns all registered limiter configurations
func (ss *SQLiteStorage) Limiters(ctx context.Context) ([]*models.LimiterConfig, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at
		FROM limiters
		ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("failed to get limiters: %w", err)
	}
	defer rows.Close()

	limiters := []*models.LimiterConfig{}
	for rows.Next() {
		lc, err := scanSQLiteLimiter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan limiter: %w", err)
		}
		limiters = append(limiters, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate limiters: %w", err)
	}

	return limiters, nil
}

// GetLimiter retrieves a limiter configuration by its identifier
func (ss *SQLiteStorage) GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at
		FROM limiters
		WHERE identifier = ?`, identifier)

	lc, err := scanSQLiteLimiter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get limiter: %w", err)
	}

	return lc, nil
}

// SaveLimiter stores or updates a limiter configuration (upsert pattern)
func (ss *SQLiteStorage) SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error {
	createdAt := limiter.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := limiter.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO limiters (identifier, min_retained_bps, limit_begin_threshold, overridden, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			min_retained_bps = excluded.min_retained_bps,
			limit_begin_threshold = excluded.limit_begin_threshold,
			overridden = excluded.overridden,
			updated_at = excluded.updated_at`,
		limiter.Identifier,
		limiter.MinRetainedBps,
		limiter.LimitBeginThreshold,
		boolToInt(limiter.Overridden),
		createdAt.UTC().Format(time.RFC3339Nano),
		updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save limiter: %w", err)
	}
	return nil
}

// SetOverridden toggles the manual bypass flag on a stored limiter
func (ss *SQLiteStorage) SetOverridden(ctx context.Context, identifier string, overridden bool) error {
	result, err := ss.db.ExecContext(ctx, `
		UPDATE limiters SET overridden = ?, updated_at = ?
		WHERE identifier = ?`,
		boolToInt(overridden), time.Now().UTC().Format(time.RFC3339Nano), identifier)
	if err != nil {
		return fmt.Errorf("failed to set overridden: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendBreach records one breach audit entry
func (ss *SQLiteStorage) AppendBreach(ctx context.Context, breach *models.BreachRecord) error {
	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO breaches (id, identifier, amount, settled_total, in_window_total, settlement_handle, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		breach.ID,
		breach.Identifier,
		breach.Amount,
		breach.SettledTotal,
		breach.InWindowTotal,
		breach.SettlementHandle,
		breach.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append breach: %w", err)
	}
	return nil
}

// Breaches returns the breach audit trail for an identifier, most recent first
func (ss *SQLiteStorage) Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, identifier, amount, settled_total, in_window_total, settlement_handle, occurred_at
		FROM breaches
		WHERE identifier = ?
		ORDER BY occurred_at DESC`, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to get breaches: %w", err)
	}
	defer rows.Close()

	breaches := []*models.BreachRecord{}
	for rows.Next() {
		var b models.BreachRecord
		var occurredAt string
		if err := rows.Scan(&b.ID, &b.Identifier, &b.Amount, &b.SettledTotal, &b.InWindowTotal, &b.SettlementHandle, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan breach: %w", err)
		}
		b.OccurredAt = parseSQLiteTime(occurredAt)
		breaches = append(breaches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breaches: %w", err)
	}

	return breaches, nil
}

// Ping verifies the storage backend is reachable and operational.
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLimiter(row rowScanner) (*models.LimiterConfig, error) {
	var lc models.LimiterConfig
	var overridden int
	var createdAt, updatedAt string
	if err := row.Scan(&lc.Identifier, &lc.MinRetainedBps, &lc.LimitBeginThreshold, &overridden, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	lc.Overridden = overridden != 0
	lc.CreatedAt = parseSQLiteTime(createdAt)
	lc.UpdatedAt = parseSQLiteTime(updatedAt)
	return &lc, nil
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
