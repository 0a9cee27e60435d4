package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/repository"
)

// SessionService exposes session housekeeping on top of the store.
type SessionService struct {
	store  port.SessionStore
	logger *zap.Logger
}

func NewSessionService(store port.SessionStore, logger *zap.Logger) *SessionService {
	return &SessionService{store: store, logger: logger}
}

// CountActive returns the number of live sessions for userID. A store
// outage reads as zero sessions rather than an error.
func (s *SessionService) CountActive(ctx context.Context, userID int64) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	count, err := s.store.CountActive(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			s.logger.Warn("session store unreachable, reporting zero sessions", zap.Error(err))
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// UpdateSnapshot merges fresh user data into a session record. Called by the
// internal API when another service changes a user's profile.
func (s *SessionService) UpdateSnapshot(ctx context.Context, sessionID string, snapshot domain.UserSnapshot) error {
	if s.store == nil {
		return nil
	}
	err := s.store.UpdateSnapshot(ctx, sessionID, snapshot)
	if errors.Is(err, repository.ErrUnavailable) {
		s.logger.Warn("session store unreachable, skipping snapshot update", zap.Error(err))
		return nil
	}
	return err
}

// Cleanup prunes reverse-index entries whose session records have expired.
func (s *SessionService) Cleanup(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.CleanupExpired(ctx)
}

// RunCleanup runs Cleanup on a fixed interval until ctx is cancelled.
func (s *SessionService) RunCleanup(ctx context.Context, interval time.Duration) {
	if s.store == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := s.Cleanup(ctx)
			if err != nil {
				s.logger.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if pruned > 0 {
				s.logger.Info("pruned stale session index entries", zap.Int("count", pruned))
			}
		}
	}
}
