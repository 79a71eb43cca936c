package deduplication

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_CreateIfAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db, "dedup_records")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insert := regexp.QuoteMeta(`INSERT INTO "dedup_records" (event_key, status, first_seen_at)`)

	mock.ExpectExec(insert).
		WithArgs("wamid.1", "IN_PROGRESS", now, now.Add(-24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs("wamid.1", "IN_PROGRESS", now, now.Add(-24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfAbsent(context.Background(), "wamid.1", now, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(context.Background(), "wamid.1", now, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateIfAbsentError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db, "dedup_records")
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection reset"))

	_, err = repo.CreateIfAbsent(context.Background(), "wamid.2", time.Now(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_MarkCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db, "dedup_records")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "dedup_records" SET status = $2`)).
		WithArgs("wamid.3", "COMPLETED", sqlmock.AnyArg(), "IN_PROGRESS").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.MarkCompleted(context.Background(), "wamid.3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Sweep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db, "dedup_records")
	cutoff := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "dedup_records" WHERE first_seen_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.Sweep(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
