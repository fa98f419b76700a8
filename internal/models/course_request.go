package models

import "time"

// RequestStatus enumerates the course request lifecycle.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusConfirmed RequestStatus = "confirmed"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// requestTransitions is the allowed state-machine table. Terminal states have
// no outgoing edges, so a cancelled or completed request can never be
// reassigned or re-cancelled.
var requestTransitions = map[RequestStatus]map[RequestStatus]struct{}{
	RequestStatusPending: {
		RequestStatusConfirmed: {},
		RequestStatusCancelled: {},
	},
	RequestStatusConfirmed: {
		RequestStatusConfirmed: {},
		RequestStatusCompleted: {},
		RequestStatusCancelled: {},
	},
}

// CanTransition reports whether moving from s to target is allowed.
func (s RequestStatus) CanTransition(target RequestStatus) bool {
	allowed, ok := requestTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[target]
	return ok
}

// CourseRequest is an organization's ask for a training course. Rows are never
// deleted; cancellation is a status transition.
type CourseRequest struct {
	ID                 int64         `db:"id" json:"id"`
	OrganizationID     int64         `db:"organization_id" json:"organization_id"`
	CourseTypeID       int64         `db:"course_type_id" json:"course_type_id"`
	RequestedDate      time.Time     `db:"requested_date" json:"requested_date"`
	Location           string        `db:"location" json:"location"`
	RegisteredStudents int           `db:"registered_students" json:"registered_students"`
	Notes              string        `db:"notes" json:"notes"`
	Status             RequestStatus `db:"status" json:"status"`
	InstructorID       *int64        `db:"instructor_id" json:"instructor_id,omitempty"`
	ScheduledDate      *time.Time    `db:"scheduled_date" json:"scheduled_date,omitempty"`
	StartTime          *string       `db:"start_time" json:"start_time,omitempty"`
	EndTime            *string       `db:"end_time" json:"end_time,omitempty"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// CourseRequestFilter captures filtering criteria for listing requests.
type CourseRequestFilter struct {
	Status         string
	OrganizationID int64
	InstructorID   int64
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
