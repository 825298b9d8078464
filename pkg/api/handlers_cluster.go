package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// listReplicas handles GET /api/v1/cluster/replicas. Each replica registers
// itself under a leased key; the payload is whatever the replica last
// published about itself.
func (s *Server) listReplicas(c *gin.Context) {
	if s.coordinator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "coordinator unavailable"})
		return
	}

	raw, err := s.coordinator.ActiveReplicas(c.Request.Context())
	if err != nil {
		s.log.Error("failed to list replicas", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list replicas"})
		return
	}

	replicas := make([]gin.H, 0, len(raw))
	for id, payload := range raw {
		entry := gin.H{"id": id}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			entry["info"] = decoded
		} else {
			entry["info"] = payload
		}
		replicas = append(replicas, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(replicas),
		"replicas": replicas,
	})
}

// getLeader handles GET /api/v1/cluster/leader.
func (s *Server) getLeader(c *gin.Context) {
	if s.elector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "election disabled"})
		return
	}

	addr, err := s.elector.LeaderAddress(c.Request.Context())
	if err != nil || addr == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no leader elected"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leader": addr,
		"self":   s.elector.IsLeader(),
	})
}
