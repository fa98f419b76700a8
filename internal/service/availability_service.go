package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/scheduling-api/internal/models"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
)

type availabilityRepo interface {
	Declare(ctx context.Context, instructorID int64, date time.Time) error
	Withdraw(ctx context.Context, instructorID int64, date time.Time) error
	Exists(ctx context.Context, instructorID int64, date time.Time) (bool, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]models.AvailabilityEntry, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string)
}

// AvailabilityCacheKey builds the redis key holding an instructor's open dates.
func AvailabilityCacheKey(instructorID int64) string {
	return fmt.Sprintf("availability:instructor:%d", instructorID)
}

// AvailabilityServiceConfig tunes the read-side cache.
type AvailabilityServiceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// AvailabilityService exposes the instructor-facing ledger operations. These
// are single-store writes; booking and unbooking go through the assignment
// service only.
type AvailabilityService struct {
	repo   availabilityRepo
	cache  availabilityCache
	cfg    AvailabilityServiceConfig
	logger *zap.Logger
}

// NewAvailabilityService creates a service instance.
func NewAvailabilityService(repo availabilityRepo, cache availabilityCache, cfg AvailabilityServiceConfig, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &AvailabilityService{repo: repo, cache: cache, cfg: cfg, logger: logger}
}

// Declare registers an open date for the instructor. Idempotent.
func (s *AvailabilityService) Declare(ctx context.Context, instructorID int64, rawDate string) error {
	date, err := parseDate(rawDate)
	if err != nil {
		return err
	}
	if err := s.repo.Declare(ctx, instructorID, date); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to declare availability")
	}
	s.invalidate(ctx, instructorID)
	return nil
}

// Withdraw removes a declared date. Withdrawing an absent date is a no-op.
func (s *AvailabilityService) Withdraw(ctx context.Context, instructorID int64, rawDate string) error {
	date, err := parseDate(rawDate)
	if err != nil {
		return err
	}
	if err := s.repo.Withdraw(ctx, instructorID, date); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to withdraw availability")
	}
	s.invalidate(ctx, instructorID)
	return nil
}

// IsAvailable reports whether the instructor declared the date open.
func (s *AvailabilityService) IsAvailable(ctx context.Context, instructorID int64, rawDate string) (bool, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return false, err
	}
	available, err := s.repo.Exists(ctx, instructorID, date)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to check availability")
	}
	return available, nil
}

// ListByInstructor returns the instructor's open dates, served from cache
// when enabled.
func (s *AvailabilityService) ListByInstructor(ctx context.Context, instructorID int64) ([]models.AvailabilityEntry, error) {
	key := AvailabilityCacheKey(instructorID)

	if s.cacheActive() {
		var cached []models.AvailabilityEntry
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("availability cache read failed", zap.Int64("instructor_id", instructorID), zap.Error(err))
		}
	}

	entries, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list availability")
	}

	if s.cacheActive() {
		if err := s.cache.Set(ctx, key, entries, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("availability cache write failed", zap.Int64("instructor_id", instructorID), zap.Error(err))
		}
	}
	return entries, nil
}

func (s *AvailabilityService) cacheActive() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

func (s *AvailabilityService) invalidate(ctx context.Context, instructorID int64) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, AvailabilityCacheKey(instructorID))
}
