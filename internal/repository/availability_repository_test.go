package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityRepositoryDeclareIdempotent(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	// first declaration inserts, second hits ON CONFLICT DO NOTHING
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), date, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), date, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Declare(context.Background(), 7, date))
	require.NoError(t, repo.Declare(context.Background(), 7, date))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryWithdrawAbsentOK(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec("DELETE FROM availability_entries").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Withdraw(context.Background(), 7, time.Now().UTC()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT 1 FROM availability_entries").
		WithArgs(int64(7), date).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	available, err := repo.Exists(context.Background(), 7, date)
	require.NoError(t, err)
	assert.True(t, available)

	mock.ExpectQuery("SELECT 1 FROM availability_entries").
		WithArgs(int64(7), date).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	available, err = repo.Exists(context.Background(), 7, date)
	require.NoError(t, err)
	assert.False(t, available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryRestoreUpserts(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), date, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	require.NoError(t, repo.Restore(context.Background(), tx, 7, date))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListByInstructor(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"instructor_id", "date", "status", "created_at", "updated_at"}).
		AddRow(int64(7), now, "available", now, now).
		AddRow(int64(7), now.AddDate(0, 0, 3), "available", now, now)

	mock.ExpectQuery(`FROM availability_entries WHERE instructor_id = \$1 ORDER BY date`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	entries, err := repo.ListByInstructor(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
