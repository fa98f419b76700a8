package models

import "time"

// ClassStatus enumerates the class record lifecycle.
type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "scheduled"
	ClassStatusCompleted ClassStatus = "completed"
)

// ClassRecord is the instructor-facing materialization of a confirmed course
// request. At most one record exists per (instructor, date) pair; the storage
// layer enforces that with a unique index.
type ClassRecord struct {
	ID           int64       `db:"id" json:"id"`
	InstructorID int64       `db:"instructor_id" json:"instructor_id"`
	ClassDate    time.Time   `db:"class_date" json:"class_date"`
	StartTime    string      `db:"start_time" json:"start_time"`
	EndTime      string      `db:"end_time" json:"end_time"`
	Location     string      `db:"location" json:"location"`
	CourseTypeID int64       `db:"course_type_id" json:"course_type_id"`
	Capacity     int         `db:"capacity" json:"capacity"`
	Enrolled     int         `db:"enrolled" json:"enrolled"`
	Status       ClassStatus `db:"status" json:"status"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}
