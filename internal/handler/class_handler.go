package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/pkg/response"
)

// ClassCompleter marks classes done.
type ClassCompleter interface {
	CompleteClass(ctx context.Context, classID int64) (*models.ClassRecord, error)
}

// ClassLister serves instructor calendars.
type ClassLister interface {
	ListClassesByInstructor(ctx context.Context, instructorID int64) ([]models.ClassRecord, error)
}

// ClassHandler exposes the instructor calendar and class completion.
type ClassHandler struct {
	completer ClassCompleter
	lister    ClassLister
}

// NewClassHandler constructs handler.
func NewClassHandler(completer ClassCompleter, lister ClassLister) *ClassHandler {
	return &ClassHandler{completer: completer, lister: lister}
}

// ListByInstructor returns the instructor's committed classes.
// GET /instructors/:id/classes
func (h *ClassHandler) ListByInstructor(c *gin.Context) {
	instructorID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	classes, err := h.lister.ListClassesByInstructor(c.Request.Context(), instructorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Complete marks a class done together with its owning request.
// POST /classes/:id/complete
func (h *ClassHandler) Complete(c *gin.Context) {
	classID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	class, err := h.completer.CompleteClass(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"class": class}, nil)
}
