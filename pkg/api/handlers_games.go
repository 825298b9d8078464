package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gridlock/pkg/api/middleware"
	"gridlock/pkg/game"
	"gridlock/pkg/rules"
	"gridlock/pkg/storage"
)

// CreateGameRequest creates a session or joins an existing one.
type CreateGameRequest struct {
	GameID   string `json:"game_id" binding:"required"`
	PlayerID string `json:"player_id" binding:"required"`
}

// MoveRequest places one mark. BoardX/BoardY address the sub-board in the
// ultimate variant and may be omitted for classic play.
type MoveRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	BoardX   int    `json:"board_x"`
	BoardY   int    `json:"board_y"`
}

// ExitRequest removes one player from a session.
type ExitRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

// createGame handles POST /api/v1/games. The same endpoint covers both
// creating a new session and joining an existing one; first writer wins the
// X slot.
func (s *Server) createGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := middleware.ValidateGameID(req.GameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := middleware.ValidatePlayerID(req.PlayerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !middleware.RequirePlayerMatch(c, req.PlayerID) {
		return
	}

	snap, err := s.manager.CreateOrJoin(c.Request.Context(), req.GameID, req.PlayerID)
	if err != nil {
		s.writeGameError(c, err)
		return
	}

	s.log.Info("player joined game",
		zap.String("game_id", req.GameID),
		zap.String("player_id", req.PlayerID))
	c.JSON(http.StatusOK, snap)
}

// makeMove handles POST /api/v1/games/:id/moves.
func (s *Server) makeMove(c *gin.Context) {
	gameID := c.Param("id")
	if err := middleware.ValidateGameID(gameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if !middleware.RequirePlayerMatch(c, req.PlayerID) {
		return
	}

	mv := rules.Move{X: req.X, Y: req.Y, BoardX: req.BoardX, BoardY: req.BoardY}
	snap, err := s.manager.ApplyMove(c.Request.Context(), gameID, req.PlayerID, mv)
	if err != nil {
		s.writeGameError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// resetRound handles POST /api/v1/games/:id/reset. Scores survive the reset.
func (s *Server) resetRound(c *gin.Context) {
	gameID := c.Param("id")
	if err := middleware.ValidateGameID(gameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := s.manager.Reset(c.Request.Context(), gameID)
	if err != nil {
		s.writeGameError(c, err)
		return
	}

	s.log.Info("round reset", zap.String("game_id", gameID))
	c.JSON(http.StatusOK, snap)
}

// getState handles GET /api/v1/games/:id. Served by any replica.
func (s *Server) getState(c *gin.Context) {
	gameID := c.Param("id")
	if err := middleware.ValidateGameID(gameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := s.manager.Snapshot(c.Request.Context(), gameID)
	if err != nil {
		s.writeGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// exitGame handles POST /api/v1/games/:id/exit. When the last player leaves
// the session is deleted.
func (s *Server) exitGame(c *gin.Context) {
	gameID := c.Param("id")
	if err := middleware.ValidateGameID(gameID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req ExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if !middleware.RequirePlayerMatch(c, req.PlayerID) {
		return
	}

	if err := s.manager.Exit(c.Request.Context(), gameID, req.PlayerID); err != nil {
		s.writeGameError(c, err)
		return
	}

	s.log.Info("player left game",
		zap.String("game_id", gameID),
		zap.String("player_id", req.PlayerID))
	c.JSON(http.StatusOK, gin.H{"message": "left game"})
}

// checkActiveSession handles GET /api/v1/players/:id/session. Clients call
// this on reconnect to find the game they were in.
func (s *Server) checkActiveSession(c *gin.Context) {
	playerID := c.Param("id")
	if err := middleware.ValidatePlayerID(playerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gameID, active, err := s.manager.ActiveSession(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":  active,
		"game_id": gameID,
	})
}

// writeGameError maps manager and rules errors to HTTP responses.
func (s *Server) writeGameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound) || errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case errors.Is(err, game.ErrInvalidState) || errors.Is(err, game.ErrNotYourTurn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, game.ErrGameFull):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrCellOccupied),
		errors.Is(err, rules.ErrOutOfRange),
		errors.Is(err, rules.ErrWrongBoard):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, game.ErrPersist):
		c.JSON(http.StatusBadGateway, gin.H{"error": "state accepted but not persisted"})
	default:
		s.log.Error("unhandled game error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
