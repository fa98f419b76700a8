package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/scheduling-api/internal/models"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
)

type requestReader interface {
	List(ctx context.Context, filter models.CourseRequestFilter) ([]models.CourseRequest, int, error)
	FindByID(ctx context.Context, id int64) (*models.CourseRequest, error)
}

type classReader interface {
	FindByInstructorDate(ctx context.Context, instructorID int64, date time.Time) (*models.ClassRecord, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]models.ClassRecord, error)
}

// RequestDetail joins a course request with its materialized class, when one
// exists.
type RequestDetail struct {
	Request *models.CourseRequest `json:"request"`
	Class   *models.ClassRecord   `json:"class,omitempty"`
}

// RequestService serves the read side of course requests.
type RequestService struct {
	requests requestReader
	classes  classReader
	logger   *zap.Logger
}

// NewRequestService creates a service instance.
func NewRequestService(requests requestReader, classes classReader, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{requests: requests, classes: classes, logger: logger}
}

// List returns course requests matching the filter.
func (s *RequestService) List(ctx context.Context, filter models.CourseRequestFilter) ([]models.CourseRequest, *models.Pagination, error) {
	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list course requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a request with its class projection when confirmed.
func (s *RequestService) Get(ctx context.Context, id int64) (*RequestDetail, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load course request")
	}

	detail := &RequestDetail{Request: request}
	if request.InstructorID != nil && request.ScheduledDate != nil && request.Status != models.RequestStatusCancelled {
		class, err := s.classes.FindByInstructorDate(ctx, *request.InstructorID, *request.ScheduledDate)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load class record")
			}
		} else {
			detail.Class = class
		}
	}
	return detail, nil
}

// ListClassesByInstructor returns the instructor's calendar.
func (s *RequestService) ListClassesByInstructor(ctx context.Context, instructorID int64) ([]models.ClassRecord, error) {
	classes, err := s.classes.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list classes")
	}
	return classes, nil
}
