package models

import "time"

// AvailabilityStatus is the ledger entry state. Only "available" is stored; a
// booked slot is represented by the absence of an entry plus a ClassRecord.
type AvailabilityStatus string

const AvailabilityStatusAvailable AvailabilityStatus = "available"

// AvailabilityEntry is an instructor's self-declared open date, keyed by the
// unique (instructor, date) pair.
type AvailabilityEntry struct {
	InstructorID int64              `db:"instructor_id" json:"instructor_id"`
	Date         time.Time          `db:"date" json:"date"`
	Status       AvailabilityStatus `db:"status" json:"status"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}
