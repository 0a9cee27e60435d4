package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
	"github.com/fr0schler/timetracker-realtime/internal/usecase"
)

// Close codes sent before dropping a connection that failed the handshake.
const (
	CloseUnauthorized websocket.StatusCode = 4001
	CloseForbidden    websocket.StatusCode = 4003
)

const maxMessageBytes = 64 << 10

// inboundMessage is the envelope clients send over the socket: a type tag
// with the payload nested under data. The flat typing fields are still
// accepted for clients that predate the envelope shape.
type inboundMessage struct {
	Type string         `json:"type"`
	Data *typingMessage `json:"data"`

	IsTyping bool   `json:"is_typing"`
	Context  string `json:"context"`
}

type typingMessage struct {
	IsTyping bool   `json:"is_typing"`
	Context  string `json:"context"`
}

func (m inboundMessage) typingState() (bool, string) {
	if m.Data != nil {
		return m.Data.IsTyping, m.Data.Context
	}
	return m.IsTyping, m.Context
}

// Gateway upgrades HTTP requests to WebSocket connections, authenticates
// them and pumps messages between the socket and the registry.
type Gateway struct {
	tokens     *usecase.TokenService
	membership port.MembershipChecker
	registry   *Registry
	logger     *zap.Logger
	cfg        config.RealtimeSettings
}

func NewGateway(tokens *usecase.TokenService, membership port.MembershipChecker, registry *Registry, logger *zap.Logger, cfg config.RealtimeSettings) *Gateway {
	return &Gateway{
		tokens:     tokens,
		membership: membership,
		registry:   registry,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handle serves GET /ws/organizations/:organization_id.
//
// Authentication happens after the upgrade so the client receives a close
// frame with an application code instead of a bare HTTP error: 4001 for
// missing or invalid credentials, 4003 for a user outside the organization.
func (g *Gateway) Handle(c *gin.Context) {
	organizationID, err := strconv.ParseInt(c.Param("organization_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return
	}

	token := bearerToken(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.AllowedOrigins,
	})
	if err != nil {
		g.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx := c.Request.Context()

	if token == "" {
		_ = conn.Close(CloseUnauthorized, "missing authentication token")
		return
	}

	identity, err := g.tokens.Verify(ctx, token)
	if err != nil {
		_ = conn.Close(CloseUnauthorized, "invalid authentication token")
		return
	}

	member, err := g.membership.IsMember(ctx, identity.UserID, organizationID)
	if err != nil {
		g.logger.Error("membership check failed",
			zap.Int64("user_id", identity.UserID),
			zap.Int64("organization_id", organizationID),
			zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "membership check failed")
		return
	}
	if !member {
		_ = conn.Close(CloseForbidden, "access denied to organization")
		return
	}

	client := NewClient(identity.UserID, uuid.NewString(), g.cfg.SendQueueSize)
	connCtx, cancel := context.WithCancel(ctx)

	shutdown := func(code websocket.StatusCode, reason string) {
		g.registry.Unregister(organizationID, client)
		cancel()
		_ = conn.Close(code, reason)
	}

	go g.writeLoop(connCtx, conn, client)

	g.registry.Register(organizationID, client)
	g.logger.Info("websocket connected",
		zap.Int64("user_id", identity.UserID),
		zap.Int64("organization_id", organizationID),
		zap.String("conn_id", client.ConnID))

	g.readLoop(connCtx, conn, client, organizationID)

	shutdown(websocket.StatusNormalClosure, "")
	g.logger.Info("websocket disconnected",
		zap.Int64("user_id", identity.UserID),
		zap.Int64("organization_id", organizationID),
		zap.String("conn_id", client.ConnID))
}

// writeLoop drains the client's queue onto the socket. Each write carries
// its own deadline so a stalled peer cannot wedge the goroutine.
func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case env := <-client.Send:
			writeCtx, cancel := context.WithTimeout(ctx, g.writeTimeout())
			err := wsjson.Write(writeCtx, conn, env)
			cancel()
			if err != nil {
				client.Close()
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, organizationID int64) {
	limiter := NewRateLimiter(g.cfg.RateLimitEvents, g.cfg.RateLimitWindow)

	for {
		readCtx, cancel := context.WithTimeout(ctx, g.readIdleTimeout())
		msgType, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			g.logReadErr(err, client)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.Enqueue(errorEnvelope("malformed message"))
			continue
		}

		if !limiter.Allow() {
			client.Enqueue(errorEnvelope("rate limit exceeded"))
			continue
		}

		g.dispatch(client, organizationID, msg)
	}
}

func (g *Gateway) dispatch(client *Client, organizationID int64, msg inboundMessage) {
	switch msg.Type {
	case "typing":
		isTyping, typingContext := msg.typingState()
		g.registry.HandleTyping(organizationID, client.UserID, isTyping, typingContext)
	case "ping":
		client.Enqueue(domain.NewEnvelope(domain.EventPong, nil))
	case "request_online_users":
		payload := domain.OnlineUsersPayload{UserIDs: g.registry.OnlineUsers(organizationID)}
		client.Enqueue(domain.NewEnvelope(domain.EventOnlineUsers, payload))
	default:
		g.logger.Debug("ignoring unknown message type",
			zap.String("type", msg.Type),
			zap.Int64("user_id", client.UserID))
	}
}

func (g *Gateway) logReadErr(err error, client *Client) {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		g.logger.Debug("peer closed connection",
			zap.Int64("user_id", client.UserID),
			zap.String("conn_id", client.ConnID))
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Info("closing idle connection",
			zap.Int64("user_id", client.UserID),
			zap.String("conn_id", client.ConnID))
	case errors.Is(err, context.Canceled):
	default:
		g.logger.Warn("websocket read failed",
			zap.Int64("user_id", client.UserID),
			zap.String("conn_id", client.ConnID),
			zap.Error(err))
	}
}

func (g *Gateway) writeTimeout() time.Duration {
	if g.cfg.WriteTimeout > 0 {
		return g.cfg.WriteTimeout
	}
	return 5 * time.Second
}

func (g *Gateway) readIdleTimeout() time.Duration {
	if g.cfg.ReadIdleTimeout > 0 {
		return g.cfg.ReadIdleTimeout
	}
	return 90 * time.Second
}

func errorEnvelope(message string) domain.Envelope {
	return domain.Envelope{
		Type:      domain.EventError,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// bearerToken extracts credentials from the token query parameter, falling
// back to an Authorization header. Browsers cannot set headers on WebSocket
// upgrades, so the query parameter is the primary channel.
func bearerToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
