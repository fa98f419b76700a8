package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/pkg/jobs"
)

// Audit records an audit trail entry after successful mutations, dispatching
// the write through the background queue so the request path never blocks on
// the audit table.
func Audit(queue *jobs.Queue, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if queue == nil {
			c.Next()
			return
		}

		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			userID = &user.UserID
		}

		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = queue.Enqueue(jobs.Job{
			ID:   uuid.NewString(),
			Type: action,
			Payload: &models.AuditLog{
				UserID:     userID,
				Action:     action,
				Resource:   resource,
				ResourceID: resourceID,
				NewValues:  body,
				IPAddress:  c.ClientIP(),
				UserAgent:  c.GetHeader("User-Agent"),
			},
		})
	}
}
