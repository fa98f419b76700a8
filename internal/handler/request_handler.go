package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/internal/service"
	"github.com/coursehub/scheduling-api/pkg/response"
)

// RequestReader is the read-side surface the handler consumes.
type RequestReader interface {
	List(ctx context.Context, filter models.CourseRequestFilter) ([]models.CourseRequest, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*service.RequestDetail, error)
}

// RequestHandler serves course request listings.
type RequestHandler struct {
	service RequestReader
}

// NewRequestHandler constructs handler.
func NewRequestHandler(svc RequestReader) *RequestHandler {
	return &RequestHandler{service: svc}
}

// List returns course requests with filtering and pagination.
// GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	var filter models.CourseRequestFilter
	filter.Status = c.Query("status")
	if orgID, err := strconv.ParseInt(c.Query("organizationId"), 10, 64); err == nil {
		filter.OrganizationID = orgID
	}
	if instructorID, err := strconv.ParseInt(c.Query("instructorId"), 10, 64); err == nil {
		filter.InstructorID = instructorID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get returns one request with its class projection.
// GET /requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
