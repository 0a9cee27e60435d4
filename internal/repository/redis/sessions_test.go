package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
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

	return client, server
}

func inIndex(t *testing.T, server *miniredis.Miniredis, key, member string) bool {
	t.Helper()
	ok, err := server.SIsMember(key, member)
	if errors.Is(err, miniredis.ErrKeyNotFound) {
		// Real Redis treats SISMEMBER on a missing key as "not a member".
		return false
	}
	if err != nil {
		t.Fatalf("SIsMember %s: %v", key, err)
	}
	return ok
}

func testSnapshot(id int64) domain.UserSnapshot {
	return domain.UserSnapshot{
		ID:          id,
		Email:       "worker@example.com",
		DisplayName: "Worker",
		IsActive:    true,
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{IdleTTL: time.Hour})

	ctx := context.Background()
	sessionID, err := repo.Create(ctx, 42, testSnapshot(42))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if sessionID == "" {
		t.Fatalf("expected non-empty session id")
	}

	record, err := repo.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", record.UserID)
	}
	if record.User.Email != "worker@example.com" {
		t.Fatalf("unexpected snapshot email %q", record.User.Email)
	}
	if record.ID != sessionID {
		t.Fatalf("expected record id %q, got %q", sessionID, record.ID)
	}

	if !inIndex(t, server, "tt:user_sessions:42", sessionID) {
		t.Fatalf("expected session id in reverse index")
	}

	ttl := server.TTL("tt:session:" + sessionID)
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within (0, 1h], got %v", ttl)
	}
}

func TestSessionRepository_GetRefreshesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{IdleTTL: time.Hour})

	ctx := context.Background()
	sessionID, err := repo.Create(ctx, 7, testSnapshot(7))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	server.FastForward(50 * time.Minute)

	record, err := repo.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.LastActivity.Before(record.CreatedAt) {
		t.Fatalf("expected last activity to be refreshed")
	}

	ttl := server.TTL("tt:session:" + sessionID)
	if ttl <= 50*time.Minute {
		t.Fatalf("expected renewed ttl, got %v", ttl)
	}

	// Past the idle TTL without reads the record expires.
	server.FastForward(2 * time.Hour)
	if _, err := repo.Get(ctx, sessionID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestSessionRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Unreachable(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	ctx := context.Background()
	sessionID, err := repo.Create(ctx, 9, testSnapshot(9))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	server.Close()

	if _, err := repo.Get(ctx, sessionID); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.Create(ctx, 9, testSnapshot(9)); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on create, got %v", err)
	}
}

func TestSessionRepository_CorruptRecordTreatedAsMiss(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	if err := server.Set("tt:session:bad", "{not json"); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	if _, err := repo.Get(context.Background(), "bad"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for corrupt record, got %v", err)
	}
	if server.Exists("tt:session:bad") {
		t.Fatalf("expected corrupt record to be dropped")
	}
}

func TestSessionRepository_UpdateSnapshot(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	ctx := context.Background()
	sessionID, err := repo.Create(ctx, 3, testSnapshot(3))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated := testSnapshot(3)
	updated.DisplayName = "Renamed"
	if err := repo.UpdateSnapshot(ctx, sessionID, updated); err != nil {
		t.Fatalf("UpdateSnapshot returned error: %v", err)
	}

	record, err := repo.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.User.DisplayName != "Renamed" {
		t.Fatalf("expected merged snapshot, got %q", record.User.DisplayName)
	}

	// Absent record is a no-op, not an error.
	if err := repo.UpdateSnapshot(ctx, "missing", updated); err != nil {
		t.Fatalf("UpdateSnapshot on missing record returned error: %v", err)
	}
}

func TestSessionRepository_DeleteIdempotent(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	ctx := context.Background()
	sessionID, err := repo.Create(ctx, 5, testSnapshot(5))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := repo.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if server.Exists("tt:session:" + sessionID) {
		t.Fatalf("expected session record to be removed")
	}
	if inIndex(t, server, "tt:user_sessions:5", sessionID) {
		t.Fatalf("expected reverse-index entry to be removed")
	}

	if err := repo.Delete(ctx, sessionID); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
}

func TestSessionRepository_DeleteUserSessions(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	ctx := context.Background()
	first, err := repo.Create(ctx, 11, testSnapshot(11))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	second, err := repo.Create(ctx, 11, testSnapshot(11))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	count, err := repo.CountActive(ctx, 11)
	if err != nil {
		t.Fatalf("CountActive returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active sessions, got %d", count)
	}

	if err := repo.DeleteUserSessions(ctx, 11); err != nil {
		t.Fatalf("DeleteUserSessions returned error: %v", err)
	}

	for _, sessionID := range []string{first, second} {
		if server.Exists("tt:session:" + sessionID) {
			t.Fatalf("expected session %s to be deleted", sessionID)
		}
	}
	if server.Exists("tt:user_sessions:11") {
		t.Fatalf("expected reverse index to be cleared")
	}

	count, err = repo.CountActive(ctx, 11)
	if err != nil {
		t.Fatalf("CountActive returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active sessions, got %d", count)
	}
}

func TestSessionRepository_CleanupExpired(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, SessionConfig{})

	ctx := context.Background()
	live, err := repo.Create(ctx, 21, testSnapshot(21))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	stale, err := repo.Create(ctx, 21, testSnapshot(21))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// Simulate passive expiry of one record: the index still references it.
	server.Del("tt:session:" + stale)

	pruned, err := repo.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned identifier, got %d", pruned)
	}

	if !inIndex(t, server, "tt:user_sessions:21", live) {
		t.Fatalf("expected live session to survive cleanup")
	}
	if inIndex(t, server, "tt:user_sessions:21", stale) {
		t.Fatalf("expected stale identifier to be pruned")
	}

	// An index whose every member expired is removed entirely.
	server.Del("tt:session:" + live)
	if _, err := repo.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if server.Exists("tt:user_sessions:21") {
		t.Fatalf("expected empty index to be dropped")
	}
}
