package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// SessionCountResponse reports the number of live sessions for the caller.
type SessionCountResponse struct {
	UserID         int64 `json:"user_id"`
	ActiveSessions int64 `json:"active_sessions"`
}

// RealtimeStatsResponse describes presence in a single organization room.
type RealtimeStatsResponse struct {
	OrganizationID    int64   `json:"organization_id"`
	OnlineUsers       []int64 `json:"online_users"`
	TotalConnections  int     `json:"total_connections"`
	UniqueUsersOnline int     `json:"unique_users_online"`
}
