package deduplication

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veritas/internal/constants"
)

type PostgresRepository struct {
	db *sql.DB

	createQuery   string
	completeQuery string
	sweepQuery    string
}

func NewPostgresRepository(db *sql.DB, table string) *PostgresRepository {
	t := pq.QuoteIdentifier(table)
	return &PostgresRepository{
		db: db,
		// The conditional DO UPDATE replaces an expired row in the same statement,
		// so one affected row means this caller owns the event.
		createQuery: fmt.Sprintf(`INSERT INTO %[1]s (event_key, status, first_seen_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_key) DO UPDATE
SET status = EXCLUDED.status, first_seen_at = EXCLUDED.first_seen_at, completed_at = NULL
WHERE %[1]s.first_seen_at < $4`, t),
		completeQuery: fmt.Sprintf(`UPDATE %s SET status = $2, completed_at = $3 WHERE event_key = $1 AND status = $4`, t),
		sweepQuery:    fmt.Sprintf(`DELETE FROM %s WHERE first_seen_at < $1`, t),
	}
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.createQuery, key, string(StatusInProgress), now.UTC(), now.Add(-retention).UTC())
	if err != nil {
		return false, fmt.Errorf("postgres insert dedup record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.completeQuery, key, string(StatusCompleted), time.Now().UTC(), string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("postgres complete dedup record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.sweepQuery, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres sweep dedup records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres rows affected: %w", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) Name() string { return constants.StoreTypePostgres }
