package service

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/internal/repository"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
)

var courseRequestTestColumns = []string{
	"id", "organization_id", "course_type_id", "requested_date", "location",
	"registered_students", "notes", "status", "instructor_id", "scheduled_date",
	"start_time", "end_time", "completed_at", "created_at", "updated_at",
}

func newAssignmentFixture(t *testing.T) (*AssignmentService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	svc := NewAssignmentService(
		repository.NewCourseRequestRepository(sqlxDB),
		repository.NewClassRecordRepository(sqlxDB),
		repository.NewAvailabilityRepository(sqlxDB),
		sqlxDB,
		nil,
		nil,
		nil,
		zap.NewNop(),
	)
	return svc, mock, func() { db.Close() }
}

func pendingRequestRow(id int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(courseRequestTestColumns).
		AddRow(id, int64(3), int64(11), now.AddDate(0, 0, 14), "HQ Training Room",
			25, "", "pending", nil, nil, nil, nil, nil, now, now)
}

func confirmedRequestRow(id, instructorID int64, date time.Time, notes string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(courseRequestTestColumns).
		AddRow(id, int64(3), int64(11), date, "HQ Training Room",
			25, notes, "confirmed", instructorID, date, "09:00", "12:00", nil, now, now)
}

func TestAssignInstructorConfirmsRequestAndBooksSlot(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(pendingRequestRow(42))
	mock.ExpectExec("UPDATE course_requests").
		WithArgs("confirmed", int64(7), sqlmock.AnyArg(), "09:00", "12:00", sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO class_records").
		WithArgs(int64(7), sqlmock.AnyArg(), "09:00", "12:00", "HQ Training Room", int64(11), 25, 0, "scheduled", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))
	mock.ExpectExec("DELETE FROM availability_entries").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.RequestStatusConfirmed, result.Request.Status)
	require.NotNil(t, result.Request.InstructorID)
	assert.Equal(t, int64(7), *result.Request.InstructorID)
	require.NotNil(t, result.Request.ScheduledDate)
	assert.Equal(t, "2025-03-10", result.Request.ScheduledDate.Format("2006-01-02"))

	assert.Equal(t, int64(99), result.Class.ID)
	assert.Equal(t, 25, result.Class.Capacity)
	assert.Equal(t, 0, result.Class.Enrolled)
	assert.Equal(t, models.ClassStatusScheduled, result.Class.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInstructorRollsBackWhenClassInsertFails(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(pendingRequestRow(42))
	mock.ExpectExec("UPDATE course_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO class_records").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	result, err := svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, appErrors.ErrStorageUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInstructorConflictOnTakenSlot(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(pendingRequestRow(42))
	mock.ExpectExec("UPDATE course_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO class_records").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInstructorRejectsMissingRequest(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(courseRequestTestColumns))
	mock.ExpectRollback()

	_, err := svc.AssignInstructor(context.Background(), 404, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInstructorRejectsTerminalStatus(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	now := time.Now().UTC()
	cancelled := sqlmock.NewRows(courseRequestTestColumns).
		AddRow(int64(42), int64(3), int64(11), now, "HQ Training Room",
			25, "[CANCELLED] too few students", "cancelled", nil, nil, nil, nil, nil, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(cancelled)
	mock.ExpectRollback()

	_, err := svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInstructorValidationBeforeAnyWrite(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	_, err := svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "03/10/2025",
		StartTime:     "09:00",
		EndTime:       "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.AssignInstructor(context.Background(), 42, AssignInstructorRequest{
		InstructorID:  7,
		ScheduledDate: "2025-03-10",
		StartTime:     "13:00",
		EndTime:       "09:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleMovesSlotAtomically(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	oldDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(confirmedRequestRow(42, 7, oldDate, ""))
	// undo old slot before applying the new one
	mock.ExpectExec("DELETE FROM class_records").
		WithArgs(int64(7), oldDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), oldDate, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE course_requests").
		WithArgs("confirmed", int64(8), sqlmock.AnyArg(), "10:00", "13:00", sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO class_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(120)))
	mock.ExpectExec("DELETE FROM availability_entries").
		WithArgs(int64(8), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newInstructor := int64(8)
	request, err := svc.Reschedule(context.Background(), 42, RescheduleRequest{
		ScheduledDate: "2025-03-17",
		StartTime:     "10:00",
		EndTime:       "13:00",
		InstructorID:  &newInstructor,
	})
	require.NoError(t, err)

	require.NotNil(t, request.InstructorID)
	assert.Equal(t, int64(8), *request.InstructorID)
	assert.Equal(t, "2025-03-17", request.ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, models.RequestStatusConfirmed, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleSameSlotKeepsSingleClassRecord(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(confirmedRequestRow(42, 7, date, ""))
	mock.ExpectExec("DELETE FROM class_records").
		WithArgs(int64(7), date).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), date, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE course_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO class_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(121)))
	mock.ExpectExec("DELETE FROM availability_entries").
		WithArgs(int64(7), date).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request, err := svc.Reschedule(context.Background(), 42, RescheduleRequest{
		ScheduledDate: "2025-03-10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), *request.InstructorID)
	assert.Equal(t, "2025-03-10", request.ScheduledDate.Format("2006-01-02"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRejectsPendingRequest(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(pendingRequestRow(42))
	mock.ExpectRollback()

	_, err := svc.Reschedule(context.Background(), 42, RescheduleRequest{ScheduledDate: "2025-03-17"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRestoresAvailability(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(confirmedRequestRow(42, 7, date, "bring projector"))
	mock.ExpectExec("UPDATE course_requests SET status").
		WithArgs("cancelled", "bring projector\n[CANCELLED] organization withdrew", sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM class_records").
		WithArgs(int64(7), date).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO availability_entries").
		WithArgs(int64(7), date, "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request, err := svc.Cancel(context.Background(), 42, "organization withdrew")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusCancelled, request.Status)
	assert.Contains(t, request.Notes, "[CANCELLED] organization withdrew")
	assert.Contains(t, request.Notes, "bring projector")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingRequestSkipsSlotUnwind(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM course_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(pendingRequestRow(42))
	mock.ExpectExec("UPDATE course_requests SET status").
		WithArgs("cancelled", "[CANCELLED] too few students", sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request, err := svc.Cancel(context.Background(), 42, "too few students")
	require.NoError(t, err)
	assert.Equal(t, "[CANCELLED] too few students", request.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBlankReasonWritesNothing(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	for _, reason := range []string{"", "   "} {
		_, err := svc.Cancel(context.Background(), 42, reason)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteClassFinishesRequestTogether(t *testing.T) {
	svc, mock, cleanup := newAssignmentFixture(t)
	defer cleanup()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	classRow := sqlmock.NewRows([]string{
		"id", "instructor_id", "class_date", "start_time", "end_time", "location",
		"course_type_id", "capacity", "enrolled", "status", "completed_at", "created_at", "updated_at",
	}).AddRow(int64(99), int64(7), date, "09:00", "12:00", "HQ Training Room", int64(11), 25, 18, "scheduled", nil, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM class_records WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(99)).
		WillReturnRows(classRow)
	mock.ExpectQuery("FROM course_requests WHERE instructor_id").
		WithArgs(int64(7), date, "confirmed").
		WillReturnRows(confirmedRequestRow(42, 7, date, ""))
	mock.ExpectExec("UPDATE class_records SET status").
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE course_requests SET status").
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	class, err := svc.CompleteClass(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusCompleted, class.Status)
	require.NotNil(t, class.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
