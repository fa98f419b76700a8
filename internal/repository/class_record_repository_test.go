package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/scheduling-api/internal/models"
)

func TestClassRecordRepositoryCreateForAssignment(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewClassRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO class_records").
		WithArgs(int64(7), sqlmock.AnyArg(), "09:00", "12:00", "HQ", int64(11), 25, 0, "scheduled", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	record := &models.ClassRecord{
		InstructorID: 7,
		ClassDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:    "09:00",
		EndTime:      "12:00",
		Location:     "HQ",
		CourseTypeID: 11,
		Capacity:     25,
		// the repository resets these regardless of input
		Enrolled: 5,
		Status:   models.ClassStatusCompleted,
	}
	require.NoError(t, repo.CreateForAssignment(context.Background(), tx, record))
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(99), record.ID)
	assert.Equal(t, 0, record.Enrolled)
	assert.Equal(t, models.ClassStatusScheduled, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRecordRepositoryCreateForAssignmentDuplicateSlot(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewClassRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO class_records").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "class_records_instructor_id_class_date_key"})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)

	err = repo.CreateForAssignment(context.Background(), tx, &models.ClassRecord{
		InstructorID: 7,
		ClassDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrDuplicateSlot)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRecordRepositoryDeleteForInstructorDateAbsentOK(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewClassRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM class_records").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForInstructorDate(context.Background(), tx, 7, time.Now().UTC()))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRecordRepositoryListByInstructor(t *testing.T) {
	db, mock, cleanup := newRepositoryMock(t)
	defer cleanup()
	repo := NewClassRecordRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "instructor_id", "class_date", "start_time", "end_time", "location",
		"course_type_id", "capacity", "enrolled", "status", "completed_at", "created_at", "updated_at",
	}).
		AddRow(int64(99), int64(7), now, "09:00", "12:00", "HQ", int64(11), 25, 18, "scheduled", nil, now, now).
		AddRow(int64(100), int64(7), now.AddDate(0, 0, 7), "13:00", "16:00", "Annex", int64(12), 12, 12, "scheduled", nil, now, now)

	mock.ExpectQuery(`FROM class_records WHERE instructor_id = \$1 ORDER BY class_date`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	records, err := repo.ListByInstructor(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "Annex", records[1].Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}
