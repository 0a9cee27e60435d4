package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
	"github.com/fr0schler/timetracker-realtime/internal/infra/logger"
	"github.com/fr0schler/timetracker-realtime/internal/repository"
)

var (
	// ErrInvalidToken covers malformed, mistyped, revoked and forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken marks a structurally valid token past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

const accessTokenType = "access"

// TokenClaims is the wire shape of an access token payload.
type TokenClaims struct {
	TokenType string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies access tokens. Verification is hybrid:
// when a token carries a session id and the session store is reachable, the
// stored record is the source of truth; when the store is down the service
// degrades to signature-only checks so authentication survives a Redis
// outage. A missing record while the store is reachable means the session
// was revoked, and the token is rejected.
type TokenService struct {
	cfg      config.JWTSettings
	sessions port.SessionStore
	logger   *zap.Logger
}

func NewTokenService(cfg config.JWTSettings, sessions port.SessionStore, logger *zap.Logger) *TokenService {
	return &TokenService{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

// Issue creates a session record for the user and returns a signed access
// token referencing it. A nil snapshot issues a deliberately stateless token
// with no session record; the store being unavailable has the same effect.
// A non-positive ttl falls back to the configured access token lifetime.
func (s *TokenService) Issue(ctx context.Context, userID int64, snapshot *domain.UserSnapshot, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.cfg.AccessTokenTTL
	}

	var sessionID string
	if snapshot != nil && s.sessions != nil {
		id, err := s.sessions.Create(ctx, userID, *snapshot)
		if err != nil {
			s.logger.Warn("session create failed, issuing stateless token",
				zap.Int64("user_id", userID),
				zap.String("email", logger.MaskEmail(snapshot.Email)),
				zap.Error(err))
		} else {
			sessionID = id
		}
	}

	now := time.Now()
	claims := TokenClaims{
		TokenType: accessTokenType,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify validates tokenString and resolves the caller's identity.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (domain.Identity, error) {
	claims, err := s.parseClaims(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}

	if claims.SessionID == "" || s.sessions == nil {
		return s.statelessIdentity(userID)
	}

	record, err := s.sessions.Get(ctx, claims.SessionID)
	switch {
	case err == nil:
		if record.UserID != userID {
			return domain.Identity{}, ErrInvalidToken
		}
		return domain.Identity{
			UserID: userID,
			Session: &domain.SessionBinding{
				SessionID: claims.SessionID,
				User:      record.User,
			},
		}, nil
	case errors.Is(err, repository.ErrNotFound):
		// Reachable store without a record means the session was revoked.
		return domain.Identity{}, ErrInvalidToken
	default:
		s.logger.Warn("session store unreachable, falling back to stateless verification",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return s.statelessIdentity(userID)
	}
}

func (s *TokenService) statelessIdentity(userID int64) (domain.Identity, error) {
	if s.cfg.RequireSession {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: userID}, nil
}

func (s *TokenService) parseClaims(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.TokenType != accessTokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke deletes the session referenced by tokenString. The signature is not
// checked: revocation of an already-compromised token must still work, and
// deleting a session is only destructive for its owner. Malformed tokens and
// tokens without a session id are ignored.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) error {
	if s.sessions == nil {
		return nil
	}

	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	if claims.SessionID == "" {
		return nil
	}
	return s.absorbOutage("revoke session", s.sessions.Delete(ctx, claims.SessionID))
}

// RevokeAll deletes every session belonging to userID, logging the user out
// of all devices at once.
func (s *TokenService) RevokeAll(ctx context.Context, userID int64) error {
	if s.sessions == nil {
		return nil
	}
	return s.absorbOutage("revoke all sessions", s.sessions.DeleteUserSessions(ctx, userID))
}

// absorbOutage downgrades a store outage to a logged no-op. A session that
// could not be deleted will expire on its own; callers never see a hard
// error from a transient Redis failure.
func (s *TokenService) absorbOutage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrUnavailable) {
		s.logger.Warn("session store unreachable, skipping "+op, zap.Error(err))
		return nil
	}
	return err
}
