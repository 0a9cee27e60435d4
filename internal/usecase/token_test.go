package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
	redisrepo "github.com/fr0schler/timetracker-realtime/internal/repository/redis"
)

const testSecret = "test-secret"

func newTokenService(t *testing.T, cfg config.JWTSettings) (*TokenService, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	store := redisrepo.NewSessionRepository(client, redisrepo.SessionConfig{})
	return NewTokenService(cfg, store, zaptest.NewLogger(t)), server
}

func defaultJWTSettings() config.JWTSettings {
	return config.JWTSettings{
		Secret:         testSecret,
		AccessTokenTTL: time.Hour,
	}
}

func snapshot(id int64) domain.UserSnapshot {
	return domain.UserSnapshot{ID: id, Email: "worker@example.com", DisplayName: "Worker", IsActive: true}
}

func snapshotRef(id int64) *domain.UserSnapshot {
	s := snapshot(id)
	return &s
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 42, snapshotRef(42), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	identity, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", identity.UserID)
	}
	if identity.Session == nil {
		t.Fatalf("expected session binding when store is reachable")
	}
	if identity.Session.User.Email != "worker@example.com" {
		t.Fatalf("unexpected snapshot email %q", identity.Session.User.Email)
	}
}

func TestTokenService_VerifyFallsBackWhenStoreDown(t *testing.T) {
	svc, server := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 7, snapshotRef(7), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	server.Close()

	identity, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("expected stateless fallback, got error: %v", err)
	}
	if identity.UserID != 7 {
		t.Fatalf("expected user id 7, got %d", identity.UserID)
	}
	if identity.Session != nil {
		t.Fatalf("expected no session binding in fallback mode")
	}
}

func TestTokenService_RequireSessionRejectsFallback(t *testing.T) {
	cfg := defaultJWTSettings()
	cfg.RequireSession = true
	svc, server := newTokenService(t, cfg)
	ctx := context.Background()

	token, err := svc.Issue(ctx, 7, snapshotRef(7), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	server.Close()

	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with require_session, got %v", err)
	}
}

func TestTokenService_RevokeAsymmetry(t *testing.T) {
	svc, server := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 9, snapshotRef(9), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	// With the store reachable revocation is enforced.
	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}

	// With the store down the same token verifies statelessly: revocation
	// is only as strong as the session store's availability.
	server.Close()
	identity, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("expected stateless fallback after outage, got %v", err)
	}
	if identity.UserID != 9 {
		t.Fatalf("expected user id 9, got %d", identity.UserID)
	}
}

func TestTokenService_RevokeAll(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	first, err := svc.Issue(ctx, 11, snapshotRef(11), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	second, err := svc.Issue(ctx, 11, snapshotRef(11), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if err := svc.RevokeAll(ctx, 11); err != nil {
		t.Fatalf("RevokeAll returned error: %v", err)
	}

	for _, token := range []string{first, second} {
		if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected token to be rejected after RevokeAll, got %v", err)
		}
	}
}

func TestTokenService_RevokeMalformedTokenIsNoop(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())

	if err := svc.Revoke(context.Background(), "not-a-token"); err != nil {
		t.Fatalf("expected malformed token revoke to be a no-op, got %v", err)
	}
}

func TestTokenService_VerifyRejectsSubjectMismatch(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 13, snapshotRef(13), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// Re-sign the same session id under a different subject.
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	claims.Subject = "14"
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}

	if _, err := svc.Verify(ctx, forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected subject mismatch rejection, got %v", err)
	}
}

func TestTokenService_VerifyRejectsExpired(t *testing.T) {
	cfg := defaultJWTSettings()
	cfg.AccessTokenTTL = -time.Minute
	svc, _ := newTokenService(t, cfg)
	ctx := context.Background()

	token, err := svc.Issue(ctx, 5, snapshotRef(5), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTokenService_VerifyRejectsWrongType(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())

	now := time.Now()
	claims := TokenClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for non-access token, got %v", err)
	}
}

func TestTokenService_VerifyRejectsBadSignature(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())

	now := time.Now()
	claims := TokenClaims{
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for bad signature, got %v", err)
	}
}

func TestTokenService_RevokeAbsorbsStoreOutage(t *testing.T) {
	svc, server := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 13, snapshotRef(13), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	server.Close()

	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("expected revoke to absorb store outage, got %v", err)
	}
	if err := svc.RevokeAll(ctx, 13); err != nil {
		t.Fatalf("expected revoke-all to absorb store outage, got %v", err)
	}
}

func TestTokenService_IssueWithoutSnapshotIsStateless(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 21, nil, 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	identity, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.Session != nil {
		t.Fatalf("expected no session binding, got %+v", identity.Session)
	}

	// A token with no embedded session cannot be revoked server-side.
	if err := svc.RevokeAll(ctx, 21); err != nil {
		t.Fatalf("RevokeAll returned error: %v", err)
	}
	if _, err := svc.Verify(ctx, token); err != nil {
		t.Fatalf("expected stateless token to survive revoke-all, got %v", err)
	}
}

func TestTokenService_IssueHonorsPerCallTTL(t *testing.T) {
	svc, _ := newTokenService(t, defaultJWTSettings())
	ctx := context.Background()

	token, err := svc.Issue(ctx, 21, nil, -time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	// ttl <= 0 falls back to the configured lifetime.
	if _, err := svc.Verify(ctx, token); err != nil {
		t.Fatalf("expected default-lifetime token to verify, got %v", err)
	}

	token, err = svc.Issue(ctx, 21, nil, time.Millisecond)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken for short-lived token, got %v", err)
	}
}
