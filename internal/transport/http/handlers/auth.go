package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/transport/http/middleware"
	"github.com/fr0schler/timetracker-realtime/internal/usecase"
)

// AuthHandler exposes session lifecycle endpoints for authenticated callers.
type AuthHandler struct {
	tokens   *usecase.TokenService
	sessions *usecase.SessionService
	logger   *zap.Logger
}

func NewAuthHandler(tokens *usecase.TokenService, sessions *usecase.SessionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// Logout revokes the session bound to the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), middleware.GetRawToken(c)); err != nil {
		h.logger.Error("logout failed",
			zap.Int64("user_id", identity.UserID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session store unavailable"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll revokes every session the caller holds, logging them out of all
// devices.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.tokens.RevokeAll(c.Request.Context(), identity.UserID); err != nil {
		h.logger.Error("logout all failed",
			zap.Int64("user_id", identity.UserID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session store unavailable"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out everywhere"})
}

// SessionCount reports how many live sessions the caller has.
func (h *AuthHandler) SessionCount(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	count, err := h.sessions.CountActive(c.Request.Context(), identity.UserID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session store unavailable"))
		return
	}

	c.JSON(http.StatusOK, SessionCountResponse{
		UserID:         identity.UserID,
		ActiveSessions: count,
	})
}
