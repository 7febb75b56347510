package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/researchdesk/internal/research"
	"gorm.io/gorm"
)

// handleResearchEvents streams progress for one (todo, service) pair as
// SSE. Emits a progress event on every change, then a final completed
// event carrying the result once the attempt finishes.
func handleResearchEvents(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		service := c.Query("service")
		if service == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "service query parameter is required"})
			return
		}
		todoID := c.Param("id")

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"todo_id": todoID, "service": service})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(2 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		var lastSeen time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				progress, err := research.Progress(db, todoID, service)
				if err != nil {
					writeSSE(c.Writer, "error", map[string]string{"error": err.Error()})
					c.Writer.Flush()
					return
				}
				if progress == nil {
					// No row left: either finished with a result or
					// cancelled. Report whichever happened and close.
					result, err := research.LatestResult(db, todoID)
					if err == nil && result != nil && result.Service == service {
						writeSSE(c.Writer, "completed", result)
					} else {
						writeSSE(c.Writer, "cancelled", map[string]string{"todo_id": todoID, "service": service})
					}
					c.Writer.Flush()
					return
				}
				if progress.UpdatedAt.After(lastSeen) {
					lastSeen = progress.UpdatedAt
					writeSSE(c.Writer, "progress", progress)
					c.Writer.Flush()
				}
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
