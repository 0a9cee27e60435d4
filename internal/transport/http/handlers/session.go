package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/infra/logger"
	"github.com/fr0schler/timetracker-realtime/internal/usecase"
)

// SessionHandler serves the internal session maintenance endpoints.
type SessionHandler struct {
	sessions *usecase.SessionService
	logger   *zap.Logger
}

func NewSessionHandler(sessions *usecase.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// UpdateSnapshot merges fresh user data into a session record. Other
// services call this when a profile changes so long-lived sessions do not
// serve stale snapshots until the next login.
func (h *SessionHandler) UpdateSnapshot(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	var snapshot domain.UserSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid snapshot payload"))
		return
	}
	if snapshot.ID <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id is required"))
		return
	}

	if err := h.sessions.UpdateSnapshot(c.Request.Context(), sessionID, snapshot); err != nil {
		h.logger.Error("snapshot update failed",
			zap.Int64("user_id", snapshot.ID),
			zap.String("email", logger.MaskEmail(snapshot.Email)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "snapshot update failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "snapshot updated"})
}
