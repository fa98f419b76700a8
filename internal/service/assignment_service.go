package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/internal/repository"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type requestStore interface {
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseRequest, error)
	FindConfirmedByInstructorDate(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) (*models.CourseRequest, error)
	ApplyAssignment(ctx context.Context, tx *sqlx.Tx, request *models.CourseRequest) error
	ApplyCancellation(ctx context.Context, tx *sqlx.Tx, id int64, notes string) error
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, id int64, completedAt time.Time) error
}

type classStore interface {
	CreateForAssignment(ctx context.Context, tx *sqlx.Tx, record *models.ClassRecord) error
	DeleteForInstructorDate(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.ClassRecord, error)
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, id int64, completedAt time.Time) error
}

type availabilityLedger interface {
	Consume(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error
	Restore(ctx context.Context, tx *sqlx.Tx, instructorID int64, date time.Time) error
}

type cacheInvalidator interface {
	Delete(ctx context.Context, keys ...string)
}

type assignmentObserver interface {
	RecordAssignmentOperation(operation, outcome string)
}

// AssignInstructorRequest carries the assignment payload.
type AssignInstructorRequest struct {
	InstructorID  int64  `json:"instructor_id" validate:"required"`
	ScheduledDate string `json:"scheduled_date" validate:"required"`
	StartTime     string `json:"start_time" validate:"required"`
	EndTime       string `json:"end_time" validate:"required"`
}

// RescheduleRequest carries the reschedule payload. Omitted times keep the
// current values; an omitted instructor keeps the current one.
type RescheduleRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"required"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	InstructorID  *int64 `json:"instructor_id"`
}

// CancelRequestPayload carries the cancellation reason.
type CancelRequestPayload struct {
	Reason string `json:"reason"`
}

// AssignmentResult is the projection returned after a successful assignment.
type AssignmentResult struct {
	Request *models.CourseRequest `json:"request"`
	Class   *models.ClassRecord   `json:"class"`
}

// AssignmentService is the single sanctioned writer of more than one of the
// three scheduling stores. Each operation owns its transaction boundary:
// course request, class record and availability ledger move together or not
// at all.
type AssignmentService struct {
	requests  requestStore
	classes   classStore
	ledger    availabilityLedger
	tx        txProvider
	cache     cacheInvalidator
	metrics   assignmentObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService wires the transaction manager.
func NewAssignmentService(
	requests requestStore,
	classes classStore,
	ledger availabilityLedger,
	tx txProvider,
	cache cacheInvalidator,
	metrics assignmentObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		requests:  requests,
		classes:   classes,
		ledger:    ledger,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// AssignInstructor confirms a pending request: the request row gains an
// instructor and schedule, a class record materializes on the instructor's
// calendar, and the matching availability entry is consumed. One transaction,
// full rollback on any step failure.
func (s *AssignmentService) AssignInstructor(ctx context.Context, requestID int64, req AssignInstructorRequest) (result *AssignmentResult, err error) {
	defer s.observe("assign", &err)

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return nil, err
	}
	if err = validateTimeWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to begin assignment transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	request, err := s.requests.FindByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "course request not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load course request")
		return nil, err
	}

	if request.Status != models.RequestStatusPending {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("request in status %s cannot be assigned", request.Status))
		return nil, err
	}

	request.Status = models.RequestStatusConfirmed
	request.InstructorID = &req.InstructorID
	request.ScheduledDate = &date
	request.StartTime = &req.StartTime
	request.EndTime = &req.EndTime

	if err = s.requests.ApplyAssignment(ctx, tx, request); err != nil {
		err = s.storageError(err, "failed to update course request")
		return nil, err
	}

	class := classRecordFor(request)
	if err = s.classes.CreateForAssignment(ctx, tx, class); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			err = appErrors.Clone(appErrors.ErrConflict, "instructor already has a class on that date")
			return nil, err
		}
		err = s.storageError(err, "failed to create class record")
		return nil, err
	}

	if err = s.ledger.Consume(ctx, tx, req.InstructorID, date); err != nil {
		err = s.storageError(err, "failed to consume availability entry")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to commit assignment")
		return nil, err
	}

	s.invalidateAvailability(ctx, req.InstructorID)
	s.logger.Info("instructor assigned",
		zap.Int64("request_id", requestID),
		zap.Int64("instructor_id", req.InstructorID),
		zap.String("date", req.ScheduledDate),
	)
	return &AssignmentResult{Request: request, Class: class}, nil
}

// Reschedule moves a confirmed request to a new date, time window and
// optionally a new instructor. The old slot is always undone before the new
// one is applied, so rescheduling to the same slot is a safe no-op.
func (s *AssignmentService) Reschedule(ctx context.Context, requestID int64, req RescheduleRequest) (request *models.CourseRequest, err error) {
	defer s.observe("reschedule", &err)

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	newDate, err := parseDate(req.ScheduledDate)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to begin reschedule transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	request, err = s.requests.FindByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "course request not found")
			return nil, err
		}
		err = s.storageError(err, "failed to load course request")
		return nil, err
	}

	if request.Status != models.RequestStatusConfirmed {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("request in status %s cannot be rescheduled", request.Status))
		return nil, err
	}
	if request.InstructorID == nil || request.ScheduledDate == nil {
		err = appErrors.Clone(appErrors.ErrInternal, "confirmed request is missing its assignment")
		return nil, err
	}

	oldInstructor := *request.InstructorID
	oldDate := *request.ScheduledDate

	// Undo the old slot first: the vacated date becomes free again before
	// the new slot is taken, which makes a same-slot reschedule net out to
	// exactly one class record and no availability entry.
	if err = s.classes.DeleteForInstructorDate(ctx, tx, oldInstructor, oldDate); err != nil {
		err = s.storageError(err, "failed to remove old class record")
		return nil, err
	}
	if err = s.ledger.Restore(ctx, tx, oldInstructor, oldDate); err != nil {
		err = s.storageError(err, "failed to restore old availability entry")
		return nil, err
	}

	newInstructor := oldInstructor
	if req.InstructorID != nil {
		newInstructor = *req.InstructorID
	}
	if req.StartTime != "" {
		request.StartTime = &req.StartTime
	}
	if req.EndTime != "" {
		request.EndTime = &req.EndTime
	}
	if err = validateTimeWindow(deref(request.StartTime), deref(request.EndTime)); err != nil {
		return nil, err
	}

	request.InstructorID = &newInstructor
	request.ScheduledDate = &newDate

	if err = s.requests.ApplyAssignment(ctx, tx, request); err != nil {
		err = s.storageError(err, "failed to update course request")
		return nil, err
	}

	class := classRecordFor(request)
	if err = s.classes.CreateForAssignment(ctx, tx, class); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			err = appErrors.Clone(appErrors.ErrConflict, "instructor already has a class on that date")
			return nil, err
		}
		err = s.storageError(err, "failed to create new class record")
		return nil, err
	}
	if err = s.ledger.Consume(ctx, tx, newInstructor, newDate); err != nil {
		err = s.storageError(err, "failed to consume new availability entry")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to commit reschedule")
		return nil, err
	}

	s.invalidateAvailability(ctx, oldInstructor, newInstructor)
	s.logger.Info("request rescheduled",
		zap.Int64("request_id", requestID),
		zap.Int64("instructor_id", newInstructor),
		zap.Time("date", newDate),
	)
	return request, nil
}

// Cancel marks the request cancelled, appends the tagged reason to its notes
// and unwinds the booked slot when one exists. The reason is required before
// any write happens.
func (s *AssignmentService) Cancel(ctx context.Context, requestID int64, reason string) (request *models.CourseRequest, err error) {
	defer s.observe("cancel", &err)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to begin cancel transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	request, err = s.requests.FindByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "course request not found")
			return nil, err
		}
		err = s.storageError(err, "failed to load course request")
		return nil, err
	}

	if !request.Status.CanTransition(models.RequestStatusCancelled) {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("request in status %s cannot be cancelled", request.Status))
		return nil, err
	}

	tag := "[CANCELLED] " + reason
	notes := tag
	if request.Notes != "" {
		notes = request.Notes + "\n" + tag
	}

	if err = s.requests.ApplyCancellation(ctx, tx, requestID, notes); err != nil {
		err = s.storageError(err, "failed to cancel course request")
		return nil, err
	}
	request.Status = models.RequestStatusCancelled
	request.Notes = notes

	var freedInstructor *int64
	if request.InstructorID != nil && request.ScheduledDate != nil {
		if err = s.classes.DeleteForInstructorDate(ctx, tx, *request.InstructorID, *request.ScheduledDate); err != nil {
			err = s.storageError(err, "failed to remove class record")
			return nil, err
		}
		if err = s.ledger.Restore(ctx, tx, *request.InstructorID, *request.ScheduledDate); err != nil {
			err = s.storageError(err, "failed to restore availability entry")
			return nil, err
		}
		freedInstructor = request.InstructorID
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to commit cancellation")
		return nil, err
	}

	if freedInstructor != nil {
		s.invalidateAvailability(ctx, *freedInstructor)
	}
	s.logger.Info("request cancelled", zap.Int64("request_id", requestID))
	return request, nil
}

// CompleteClass marks a class record completed and moves the owning confirmed
// request to completed in the same transaction. The availability entry stays
// absent: a completed class still occupies the date.
func (s *AssignmentService) CompleteClass(ctx context.Context, classID int64) (class *models.ClassRecord, err error) {
	defer s.observe("complete", &err)

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to begin completion transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	class, err = s.classes.FindByIDForUpdate(ctx, tx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "class record not found")
			return nil, err
		}
		err = s.storageError(err, "failed to load class record")
		return nil, err
	}
	if class.Status != models.ClassStatusScheduled {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("class in status %s cannot be completed", class.Status))
		return nil, err
	}

	request, err := s.requests.FindConfirmedByInstructorDate(ctx, tx, class.InstructorID, class.ClassDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInternal, "class record has no owning confirmed request")
			return nil, err
		}
		err = s.storageError(err, "failed to load owning course request")
		return nil, err
	}

	completedAt := time.Now().UTC()
	if err = s.classes.MarkCompleted(ctx, tx, classID, completedAt); err != nil {
		err = s.storageError(err, "failed to complete class record")
		return nil, err
	}
	if err = s.requests.MarkCompleted(ctx, tx, request.ID, completedAt); err != nil {
		err = s.storageError(err, "failed to complete course request")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to commit completion")
		return nil, err
	}

	class.Status = models.ClassStatusCompleted
	class.CompletedAt = &completedAt
	s.logger.Info("class completed", zap.Int64("class_id", classID), zap.Int64("request_id", request.ID))
	return class, nil
}

func (s *AssignmentService) observe(operation string, err *error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if *err != nil {
		outcome = "error"
	}
	s.metrics.RecordAssignmentOperation(operation, outcome)
}

func (s *AssignmentService) invalidateAvailability(ctx context.Context, instructorIDs ...int64) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(instructorIDs))
	for _, id := range instructorIDs {
		keys = append(keys, AvailabilityCacheKey(id))
	}
	s.cache.Delete(ctx, keys...)
}

func (s *AssignmentService) storageError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, message)
}

func classRecordFor(request *models.CourseRequest) *models.ClassRecord {
	return &models.ClassRecord{
		InstructorID: *request.InstructorID,
		ClassDate:    *request.ScheduledDate,
		StartTime:    deref(request.StartTime),
		EndTime:      deref(request.EndTime),
		Location:     request.Location,
		CourseTypeID: request.CourseTypeID,
		Capacity:     request.RegisteredStudents,
	}
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "scheduled_date must be formatted YYYY-MM-DD")
	}
	return date, nil
}

func validateTimeWindow(start, end string) error {
	startAt, err := time.Parse(timeLayout, start)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_time must be formatted HH:MM")
	}
	endAt, err := time.Parse(timeLayout, end)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_time must be formatted HH:MM")
	}
	if !endAt.After(startAt) {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
