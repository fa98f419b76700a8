package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coursehub/scheduling-api/internal/models"
)

// ErrDuplicateSlot is returned when the unique (instructor_id, class_date)
// index rejects an insert, meaning a concurrent writer already booked the slot.
var ErrDuplicateSlot = errors.New("class record already exists for instructor and date")

const classRecordColumns = `id, instructor_id, class_date, start_time, end_time, location, course_type_id, capacity, enrolled, status, completed_at, created_at, updated_at`

const pqUniqueViolation = "23505"

// ClassRecordRepository persists instructor class commitments.
type ClassRecordRepository struct {
	db *sqlx.DB
}

// NewClassRecordRepository constructs the repository.
func NewClassRecordRepository(db *sqlx.DB) *ClassRecordRepository {
	return &ClassRecordRepository{db: db}
}

// CreateForAssignment inserts a class record inside tx. Enrollment starts at
// zero and status at scheduled regardless of what the caller passed in.
func (r *ClassRecordRepository) CreateForAssignment(ctx context.Context, tx *sqlx.Tx, record *models.ClassRecord) error {
	now := time.Now().UTC()
	record.Enrolled = 0
	record.Status = models.ClassStatusScheduled
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO class_records (instructor_id, class_date, start_time, end_time, location, course_type_id, capacity, enrolled, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := tx.QueryRowxContext(ctx, query,
		record.InstructorID,
		record.ClassDate,
		record.StartTime,
		record.EndTime,
		record.Location,
		record.CourseTypeID,
		record.Capacity,
		record.Enrolled,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("create class record: %w", err)
	}
	return nil
}

// DeleteForInstructorDate removes the class record at (instructor, date)
// inside tx. Absence is not an error.
func (r *ClassRecordRepository) DeleteForInstructorDate(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error {
	const query = `DELETE FROM class_records WHERE instructor_id = $1 AND class_date = $2`
	if _, err := tx.ExecContext(ctx, query, instructorID, date); err != nil {
		return fmt.Errorf("delete class record for instructor %d: %w", instructorID, err)
	}
	return nil
}

// FindByID loads a class record by id.
func (r *ClassRecordRepository) FindByID(ctx context.Context, id int64) (*models.ClassRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM class_records WHERE id = $1", classRecordColumns)
	var record models.ClassRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDForUpdate loads a class record inside tx with a row lock.
func (r *ClassRecordRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.ClassRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM class_records WHERE id = $1 FOR UPDATE", classRecordColumns)
	var record models.ClassRecord
	if err := tx.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByInstructorDate loads the class record occupying (instructor, date).
func (r *ClassRecordRepository) FindByInstructorDate(ctx context.Context, instructorID int64, date time.Time) (*models.ClassRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM class_records WHERE instructor_id = $1 AND class_date = $2", classRecordColumns)
	var record models.ClassRecord
	if err := r.db.GetContext(ctx, &record, query, instructorID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByInstructor returns the instructor's calendar ordered by date.
func (r *ClassRecordRepository) ListByInstructor(ctx context.Context, instructorID int64) ([]models.ClassRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM class_records WHERE instructor_id = $1 ORDER BY class_date ASC, start_time ASC", classRecordColumns)
	var records []models.ClassRecord
	if err := r.db.SelectContext(ctx, &records, query, instructorID); err != nil {
		return nil, fmt.Errorf("list class records by instructor: %w", err)
	}
	return records, nil
}

// MarkCompleted flips the class record to completed inside tx.
func (r *ClassRecordRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id int64, completedAt time.Time) error {
	const query = `UPDATE class_records SET status = $1, completed_at = $2, updated_at = $3 WHERE id = $4`
	result, err := tx.ExecContext(ctx, query, models.ClassStatusCompleted, completedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete class record %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check completed class rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
