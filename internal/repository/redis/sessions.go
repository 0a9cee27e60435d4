package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/infra/security"
	"github.com/fr0schler/timetracker-realtime/internal/repository"
)

const (
	defaultSessionPrefix      = "tt:session"
	defaultUserSessionsPrefix = "tt:user_sessions"
	defaultIdleTTL            = 24 * time.Hour

	// 128 bits of entropy per session identifier.
	sessionIDBytes = 16

	cleanupScanCount = 100
)

// SessionConfig tunes key prefixes and the idle TTL for session records.
type SessionConfig struct {
	SessionPrefix      string
	UserSessionsPrefix string
	IdleTTL            time.Duration
}

// SessionRepository persists session records in Redis. The record lives under
// <session_prefix>:<id> with an idle TTL renewed on every read; a per-user set
// under <user_sessions_prefix>:<uid> supports bulk revocation.
type SessionRepository struct {
	client        *red.Client
	sessionPrefix string
	indexPrefix   string
	ttl           time.Duration
}

// NewSessionRepository constructs a Redis-backed session store.
func NewSessionRepository(client *red.Client, cfg SessionConfig) *SessionRepository {
	sessionPrefix := strings.TrimSpace(cfg.SessionPrefix)
	if sessionPrefix == "" {
		sessionPrefix = defaultSessionPrefix
	}
	indexPrefix := strings.TrimSpace(cfg.UserSessionsPrefix)
	if indexPrefix == "" {
		indexPrefix = defaultUserSessionsPrefix
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}

	return &SessionRepository{
		client:        client,
		sessionPrefix: sessionPrefix,
		indexPrefix:   indexPrefix,
		ttl:           ttl,
	}
}

// Create writes a fresh session record and registers it in the owner's
// reverse index, refreshing the index TTL.
func (r *SessionRepository) Create(ctx context.Context, userID int64, snapshot domain.UserSnapshot) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("user id is required")
	}

	sessionID, err := security.GenerateSecureToken(sessionIDBytes)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	now := time.Now().UTC()
	record := domain.SessionRecord{
		ID:           sessionID,
		UserID:       userID,
		User:         snapshot,
		CreatedAt:    now,
		LastActivity: now,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(sessionID), payload, r.ttl)
	pipe.SAdd(ctx, r.indexKey(userID), sessionID)
	pipe.Expire(ctx, r.indexKey(userID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", storeErr("redis create session", err)
	}

	return sessionID, nil
}

// Get reads a session record. On a hit the record is rewritten with a fresh
// last-activity timestamp and a renewed TTL: every read extends life.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	key := r.sessionKey(sessionID)
	if key == "" {
		return nil, fmt.Errorf("session id is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, storeErr("redis get session", err)
	}

	var record domain.SessionRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		// Corrupt entry: drop it and treat as expired.
		_ = r.client.Del(ctx, key).Err()
		return nil, repository.ErrNotFound
	}
	record.ID = sessionID
	record.Touch(time.Now().UTC())

	// Read-refresh is best effort; the read itself already succeeded.
	if payload, err := json.Marshal(record); err == nil {
		_ = r.client.Set(ctx, key, payload, r.ttl).Err()
	}

	return &record, nil
}

// UpdateSnapshot merges new user data into an existing record, refreshing its
// TTL. No-op when the record is absent.
func (r *SessionRepository) UpdateSnapshot(ctx context.Context, sessionID string, snapshot domain.UserSnapshot) error {
	key := r.sessionKey(sessionID)
	if key == "" {
		return fmt.Errorf("session id is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil
		}
		return storeErr("redis get session", err)
	}

	var record domain.SessionRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		_ = r.client.Del(ctx, key).Err()
		return nil
	}
	record.ID = sessionID
	record.User = snapshot
	record.Touch(time.Now().UTC())

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return storeErr("redis update session", err)
	}

	return nil
}

// Delete removes the session record and its reverse-index entry. Idempotent:
// deleting an absent session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	if key == "" {
		return fmt.Errorf("session id is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil
		}
		return storeErr("redis get session", err)
	}

	var record domain.SessionRecord
	ownerKnown := json.Unmarshal([]byte(value), &record) == nil && record.UserID > 0

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if ownerKnown {
		pipe.SRem(ctx, r.indexKey(record.UserID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("redis delete session", err)
	}

	return nil
}

// DeleteUserSessions enumerates the reverse index and deletes every member's
// session record, then clears the index. Used for "logout everywhere".
func (r *SessionRepository) DeleteUserSessions(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}

	indexKey := r.indexKey(userID)
	sessionIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return storeErr("redis list user sessions", err)
	}

	pipe := r.client.TxPipeline()
	for _, sessionID := range sessionIDs {
		pipe.Del(ctx, r.sessionKey(sessionID))
	}
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("redis delete user sessions", err)
	}

	return nil
}

// CountActive reports the size of the reverse-index set. Approximate: it may
// include already-expired identifiers until a cleanup pass prunes them.
func (r *SessionRepository) CountActive(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("user id is required")
	}

	count, err := r.client.SCard(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return 0, storeErr("redis count sessions", err)
	}
	return count, nil
}

// CleanupExpired scans reverse-index sets and drops identifiers whose session
// record no longer exists. Redis expires the records themselves; this pass
// only keeps the index sets from growing without bound.
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int, error) {
	pruned := 0
	pattern := r.indexPrefix + ":*"

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, cleanupScanCount).Result()
		if err != nil {
			return pruned, storeErr("redis scan session indexes", err)
		}

		for _, indexKey := range keys {
			dropped, err := r.cleanupIndex(ctx, indexKey)
			if err != nil {
				return pruned, err
			}
			pruned += dropped
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return pruned, nil
}

func (r *SessionRepository) cleanupIndex(ctx context.Context, indexKey string) (int, error) {
	sessionIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, storeErr("redis list session index", err)
	}

	valid := make([]any, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		exists, err := r.client.Exists(ctx, r.sessionKey(sessionID)).Result()
		if err != nil {
			return 0, storeErr("redis check session", err)
		}
		if exists > 0 {
			valid = append(valid, sessionID)
		}
	}

	dropped := len(sessionIDs) - len(valid)
	if dropped == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, indexKey)
	if len(valid) > 0 {
		pipe.SAdd(ctx, indexKey, valid...)
		pipe.Expire(ctx, indexKey, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("redis rewrite session index", err)
	}

	return dropped, nil
}

func (r *SessionRepository) sessionKey(sessionID string) string {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.sessionPrefix, trimmed)
}

func (r *SessionRepository) indexKey(userID int64) string {
	return fmt.Sprintf("%s:%d", r.indexPrefix, userID)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %s", op, repository.ErrUnavailable, err)
}
