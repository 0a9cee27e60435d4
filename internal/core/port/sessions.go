package port

import (
	"context"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

// SessionStore persists session records with idle-TTL semantics plus a
// per-user reverse index used for bulk revocation.
//
// Get distinguishes a miss (repository.ErrNotFound) from a backing-store
// outage (repository.ErrUnavailable); the token service's hybrid verification
// depends on that distinction.
type SessionStore interface {
	// Create writes a new session record and returns its identifier.
	Create(ctx context.Context, userID int64, snapshot domain.UserSnapshot) (string, error)
	// Get reads a record, refreshing its last-activity marker and TTL.
	Get(ctx context.Context, sessionID string) (*domain.SessionRecord, error)
	// UpdateSnapshot merges new user data into an existing record. No-op when
	// the record is absent.
	UpdateSnapshot(ctx context.Context, sessionID string, snapshot domain.UserSnapshot) error
	// Delete removes a record and its reverse-index entry. Idempotent.
	Delete(ctx context.Context, sessionID string) error
	// DeleteUserSessions removes every session owned by the user.
	DeleteUserSessions(ctx context.Context, userID int64) error
	// CountActive reports the approximate number of live sessions for a user.
	CountActive(ctx context.Context, userID int64) (int64, error)
	// CleanupExpired prunes reverse-index members whose session record has
	// expired, returning the number of identifiers dropped.
	CleanupExpired(ctx context.Context) (int, error)
}
