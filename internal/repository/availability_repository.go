package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coursehub/scheduling-api/internal/models"
)

// AvailabilityRepository maintains the per-instructor free-date ledger.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Declare inserts an availability entry. Re-declaring an existing date is a
// no-op, not an error.
func (r *AvailabilityRepository) Declare(ctx context.Context, instructorID int64, date time.Time) error {
	now := time.Now().UTC()
	const query = `INSERT INTO availability_entries (instructor_id, date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instructor_id, date) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, instructorID, date, models.AvailabilityStatusAvailable, now, now); err != nil {
		return fmt.Errorf("declare availability: %w", err)
	}
	return nil
}

// Withdraw deletes the entry if present; no-op if absent.
func (r *AvailabilityRepository) Withdraw(ctx context.Context, instructorID int64, date time.Time) error {
	const query = `DELETE FROM availability_entries WHERE instructor_id = $1 AND date = $2`
	if _, err := r.db.ExecContext(ctx, query, instructorID, date); err != nil {
		return fmt.Errorf("withdraw availability: %w", err)
	}
	return nil
}

// Exists reports whether the instructor declared the date open. Display and
// filtering only; booking is gated by the class record unique index.
func (r *AvailabilityRepository) Exists(ctx context.Context, instructorID int64, date time.Time) (bool, error) {
	const query = `SELECT 1 FROM availability_entries WHERE instructor_id = $1 AND date = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, instructorID, date); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check availability: %w", err)
	}
	return true, nil
}

// ListByInstructor returns the instructor's open dates ordered ascending.
func (r *AvailabilityRepository) ListByInstructor(ctx context.Context, instructorID int64) ([]models.AvailabilityEntry, error) {
	const query = `SELECT instructor_id, date, status, created_at, updated_at FROM availability_entries WHERE instructor_id = $1 ORDER BY date ASC`
	var entries []models.AvailabilityEntry
	if err := r.db.SelectContext(ctx, &entries, query, instructorID); err != nil {
		return nil, fmt.Errorf("list availability by instructor: %w", err)
	}
	return entries, nil
}

// Consume deletes the entry at (instructor, date) inside tx when a booking
// takes the slot. Absence is not an error: administrative assignment may
// happen without a prior declaration.
func (r *AvailabilityRepository) Consume(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error {
	const query = `DELETE FROM availability_entries WHERE instructor_id = $1 AND date = $2`
	if _, err := tx.ExecContext(ctx, query, instructorID, date); err != nil {
		return fmt.Errorf("consume availability: %w", err)
	}
	return nil
}

// Restore re-creates the entry at (instructor, date) inside tx when a booking
// is unwound. An existing entry is reset to available rather than erroring.
func (r *AvailabilityRepository) Restore(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error {
	now := time.Now().UTC()
	const query = `INSERT INTO availability_entries (instructor_id, date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instructor_id, date) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, instructorID, date, models.AvailabilityStatusAvailable, now, now); err != nil {
		return fmt.Errorf("restore availability: %w", err)
	}
	return nil
}
