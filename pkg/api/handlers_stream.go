package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gridlock/pkg/api/middleware"
	"gridlock/pkg/models"
)

// streamEvents handles GET /api/v1/games/:id/events. Snapshots are pushed as
// server-sent events; the first event is the current state at subscribe
// time, then every committed mutation in order. A subscriber that cannot
// keep up is disconnected rather than allowed to stall the fan-out.
func (s *Server) streamEvents(c *gin.Context) {
	gameID := c.Param("id")
	if err := middleware.ValidateGameID(gameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subID, events, err := s.manager.Subscribe(c.Request.Context(), gameID)
	if err != nil {
		s.writeGameError(c, err)
		return
	}
	defer s.manager.Unsubscribe(gameID, subID)

	closeStream := middleware.StreamOpened()
	defer closeStream()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	s.log.Debug("event stream opened",
		zap.String("game_id", gameID),
		zap.String("subscriber_id", subID.String()))

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-events:
			if !ok {
				// Session deleted or this subscriber was pruned.
				return false
			}
			c.SSEvent("state", sseData(snap))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// sseData marshals a snapshot for the SSE payload. Marshal of a plain struct
// cannot fail; a raw string keeps gin from double-encoding.
func sseData(snap models.Snapshot) string {
	b, _ := json.Marshal(snap)
	return string(b)
}
