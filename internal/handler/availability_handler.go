package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/scheduling-api/internal/models"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
	"github.com/coursehub/scheduling-api/pkg/response"
)

// AvailabilityManager is the ledger surface the handler consumes.
type AvailabilityManager interface {
	Declare(ctx context.Context, instructorID int64, date string) error
	Withdraw(ctx context.Context, instructorID int64, date string) error
	IsAvailable(ctx context.Context, instructorID int64, date string) (bool, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]models.AvailabilityEntry, error)
}

// DeclareAvailabilityRequest is the declaration payload.
type DeclareAvailabilityRequest struct {
	Date string `json:"date" binding:"required"`
}

// AvailabilityHandler exposes the instructor availability ledger.
type AvailabilityHandler struct {
	service AvailabilityManager
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc AvailabilityManager) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// List returns the instructor's declared open dates.
// GET /instructors/:id/availability
func (h *AvailabilityHandler) List(c *gin.Context) {
	instructorID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.service.ListByInstructor(c.Request.Context(), instructorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Declare registers an open date. Re-declaring is a no-op.
// POST /instructors/:id/availability
func (h *AvailabilityHandler) Declare(c *gin.Context) {
	instructorID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req DeclareAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.Declare(c.Request.Context(), instructorID, req.Date); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"instructor_id": instructorID, "date": req.Date})
}

// Withdraw removes an open date. Withdrawing an absent date is a no-op.
// DELETE /instructors/:id/availability/:date
func (h *AvailabilityHandler) Withdraw(c *gin.Context) {
	instructorID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), instructorID, c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Check reports whether the instructor declared the date open. Display only;
// booking does not consult this.
// GET /instructors/:id/availability/:date
func (h *AvailabilityHandler) Check(c *gin.Context) {
	instructorID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	available, err := h.service.IsAvailable(c.Request.Context(), instructorID, c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available": available}, nil)
}
