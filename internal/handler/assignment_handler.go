package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/internal/service"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
	"github.com/coursehub/scheduling-api/pkg/response"
)

// AssignmentOrchestrator is the slice of the assignment service the handler
// consumes.
type AssignmentOrchestrator interface {
	AssignInstructor(ctx context.Context, requestID int64, req service.AssignInstructorRequest) (*service.AssignmentResult, error)
	Reschedule(ctx context.Context, requestID int64, req service.RescheduleRequest) (*models.CourseRequest, error)
	Cancel(ctx context.Context, requestID int64, reason string) (*models.CourseRequest, error)
}

// AssignmentHandler exposes the admin-facing assignment operations.
type AssignmentHandler struct {
	service AssignmentOrchestrator
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(svc AssignmentOrchestrator) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// Assign confirms a pending request with an instructor and schedule.
// POST /requests/:id/assign
func (h *AssignmentHandler) Assign(c *gin.Context) {
	requestID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.AssignInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.AssignInstructor(c.Request.Context(), requestID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reschedule moves a confirmed request to a new slot.
// POST /requests/:id/reschedule
func (h *AssignmentHandler) Reschedule(c *gin.Context) {
	requestID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.service.Reschedule(c.Request.Context(), requestID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request": request}, nil)
}

// Cancel marks a request cancelled with a mandatory reason.
// POST /requests/:id/cancel
func (h *AssignmentHandler) Cancel(c *gin.Context) {
	requestID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.CancelRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.service.Cancel(c.Request.Context(), requestID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request": request}, nil)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid id parameter")
	}
	return id, nil
}
