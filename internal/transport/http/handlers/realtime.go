package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/transport/http/middleware"
)

// PresenceReader exposes the registry's read side to the stats endpoint.
type PresenceReader interface {
	OnlineUsers(organizationID int64) []int64
	ConnectionCount(organizationID int64) int
}

// UserSender delivers an envelope to one user's connections.
type UserSender interface {
	SendToUser(organizationID, userID int64, env domain.Envelope)
}

// RealtimeHandler serves presence stats and the internal fan-out endpoints.
type RealtimeHandler struct {
	presence    PresenceReader
	broadcaster port.Broadcaster
	sender      UserSender
	membership  port.MembershipChecker
	logger      *zap.Logger
}

func NewRealtimeHandler(presence PresenceReader, broadcaster port.Broadcaster, sender UserSender, membership port.MembershipChecker, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		presence:    presence,
		broadcaster: broadcaster,
		sender:      sender,
		membership:  membership,
		logger:      logger,
	}
}

// Stats reports who is online in an organization room on this node. The
// caller must belong to the organization.
func (h *RealtimeHandler) Stats(c *gin.Context) {
	organizationID, err := strconv.ParseInt(c.Param("organization_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid organization id"))
		return
	}

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	member, err := h.membership.IsMember(c.Request.Context(), identity.UserID, organizationID)
	if err != nil {
		h.logger.Error("membership check failed",
			zap.Int64("user_id", identity.UserID),
			zap.Int64("organization_id", organizationID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "membership check unavailable"))
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "access denied to organization"))
		return
	}

	online := h.presence.OnlineUsers(organizationID)
	c.JSON(http.StatusOK, RealtimeStatsResponse{
		OrganizationID:    organizationID,
		OnlineUsers:       online,
		TotalConnections:  h.presence.ConnectionCount(organizationID),
		UniqueUsersOnline: len(online),
	})
}

// BroadcastRequest is the internal fan-out payload other services POST when
// they bypass Kafka.
type BroadcastRequest struct {
	Event domain.Envelope `json:"event" binding:"required"`
}

// Broadcast fans an event out to an organization room. The route is mounted
// under /internal and is expected to be reachable only from the private
// network.
func (h *RealtimeHandler) Broadcast(c *gin.Context) {
	organizationID, err := strconv.ParseInt(c.Param("organization_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid organization id"))
		return
	}

	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid broadcast payload"))
		return
	}
	if req.Event.Type == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "event type is required"))
		return
	}

	h.broadcaster.Broadcast(organizationID, req.Event)
	c.JSON(http.StatusAccepted, MessageResponse{Message: "broadcast accepted"})
}

// SendToUser delivers an event to a single user's connections in the room.
func (h *RealtimeHandler) SendToUser(c *gin.Context) {
	organizationID, err := strconv.ParseInt(c.Param("organization_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid organization id"))
		return
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user id"))
		return
	}

	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid broadcast payload"))
		return
	}
	if req.Event.Type == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "event type is required"))
		return
	}

	h.sender.SendToUser(organizationID, userID, req.Event)
	c.JSON(http.StatusAccepted, MessageResponse{Message: "delivery accepted"})
}
