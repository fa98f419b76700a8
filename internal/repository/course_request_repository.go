package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coursehub/scheduling-api/internal/models"
)

const courseRequestColumns = `id, organization_id, course_type_id, requested_date, location, registered_students, notes, status, instructor_id, scheduled_date, start_time, end_time, completed_at, created_at, updated_at`

// CourseRequestRepository provides persistence for course requests.
type CourseRequestRepository struct {
	db *sqlx.DB
}

// NewCourseRequestRepository creates a new course request repository.
func NewCourseRequestRepository(db *sqlx.DB) *CourseRequestRepository {
	return &CourseRequestRepository{db: db}
}

// List returns course requests with optional filtering and pagination.
func (r *CourseRequestRepository) List(ctx context.Context, filter models.CourseRequestFilter) ([]models.CourseRequest, int, error) {
	base := "FROM course_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OrganizationID != 0 {
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.InstructorID != 0 {
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"requested_date": true,
		"scheduled_date": true,
		"status":         true,
		"created_at":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "requested_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseRequestColumns, base, sortBy, order, size, offset)
	var requests []models.CourseRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count course requests: %w", err)
	}

	return requests, total, nil
}

// FindByID loads a course request by id.
func (r *CourseRequestRepository) FindByID(ctx context.Context, id int64) (*models.CourseRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM course_requests WHERE id = $1", courseRequestColumns)
	var request models.CourseRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByIDForUpdate loads a course request inside tx, taking a row lock so
// concurrent assignment attempts on the same request serialize.
func (r *CourseRequestRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM course_requests WHERE id = $1 FOR UPDATE", courseRequestColumns)
	var request models.CourseRequest
	if err := tx.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindConfirmedByInstructorDate locates the confirmed request owning the
// class record at (instructor, date), locking the row inside tx.
func (r *CourseRequestRepository) FindConfirmedByInstructorDate(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) (*models.CourseRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM course_requests WHERE instructor_id = $1 AND scheduled_date = $2 AND status = $3 FOR UPDATE", courseRequestColumns)
	var request models.CourseRequest
	if err := tx.GetContext(ctx, &request, query, instructorID, date, models.RequestStatusConfirmed); err != nil {
		return nil, err
	}
	return &request, nil
}

// ApplyAssignment persists instructor, schedule and status changes inside tx.
func (r *CourseRequestRepository) ApplyAssignment(ctx context.Context, tx *sqlx.Tx, request *models.CourseRequest) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_requests
		SET status = :status, instructor_id = :instructor_id, scheduled_date = :scheduled_date,
		    start_time = :start_time, end_time = :end_time, updated_at = :updated_at
		WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("apply assignment to request %d: %w", request.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assigned request rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyCancellation marks the request cancelled with the amended notes inside tx.
func (r *CourseRequestRepository) ApplyCancellation(ctx context.Context, tx *sqlx.Tx, id int64, notes string) error {
	const query = `UPDATE course_requests SET status = $1, notes = $2, updated_at = $3 WHERE id = $4`
	result, err := tx.ExecContext(ctx, query, models.RequestStatusCancelled, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("cancel request %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancelled request rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompleted records completion of a confirmed request inside tx.
func (r *CourseRequestRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id int64, completedAt time.Time) error {
	const query = `UPDATE course_requests SET status = $1, completed_at = $2, updated_at = $3 WHERE id = $4`
	result, err := tx.ExecContext(ctx, query, models.RequestStatusCompleted, completedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete request %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check completed request rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
