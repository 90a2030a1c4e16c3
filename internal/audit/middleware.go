package audit

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flakewatch/flakewatch/internal/middleware"
	"github.com/flakewatch/flakewatch/internal/safego"
)

// shipTimeout bounds how long a background ship attempt may take.
const shipTimeout = 10 * time.Second

// Middleware records control-plane mutations as audit entries. Only writes
// (POST, DELETE) are recorded; reads are not security-relevant here. Shipping
// happens on a background goroutine so a slow audit destination never adds
// latency to the request path.
func Middleware(shipper Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "POST" && c.Request.Method != "DELETE" {
			return
		}

		requestID, _ := c.Get(middleware.RequestIDKey)
		entry := &LogEntry{
			Timestamp:    time.Now().UTC(),
			Action:       c.Request.Method + " " + c.FullPath(),
			RequestID:    toString(requestID),
			ResourceType: resourceType(c.FullPath()),
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			StatusCode:   c.Writer.Status(),
		}

		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), shipTimeout)
			defer cancel()
			// Delivery failures are already logged by the shipper.
			_ = shipper.Ship(ctx, entry)
		})
	}
}

// resourceType derives the audited resource kind from the route template, e.g.
// "/api/v1/projects/:id/tokens" audits tokens, not projects.
func resourceType(routePath string) string {
	switch {
	case strings.Contains(routePath, "/tokens"):
		return "token"
	case strings.Contains(routePath, "/projects"):
		return "project"
	case strings.Contains(routePath, "/organizations"):
		return "organization"
	default:
		return ""
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}
