package domain

import "time"

// UserSnapshot carries denormalized user attributes captured at login time.
// It lets per-request reads skip a database round trip; the data may go stale
// until the next login refreshes it.
type UserSnapshot struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// SessionRecord is the server-side state backing a bearer token. Its presence
// in the session store is what makes the token revocable.
type SessionRecord struct {
	ID           string       `json:"-"`
	UserID       int64        `json:"user_id"`
	User         UserSnapshot `json:"user"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
}

// Touch refreshes the last-activity marker when the session is read.
func (r *SessionRecord) Touch(at time.Time) {
	r.LastActivity = at
}

// SessionBinding is the session half of a verified identity. It is absent when
// the token was verified statelessly (no embedded session, or the session
// store was unreachable).
type SessionBinding struct {
	SessionID string
	User      UserSnapshot
}

// Identity is the result of token verification. Callers must branch on
// Session being nil before relying on snapshot data; authoritative user state
// should always be re-fetched by UserID for authorization decisions.
type Identity struct {
	UserID  int64
	Session *SessionBinding
}
