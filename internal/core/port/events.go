package port

import (
	"context"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

// EventPublisher emits domain events to the rest of the platform. Publishing
// is fire-and-forget: callers log failures but never fail their own
// operation because of one.
type EventPublisher interface {
	PublishDomainEvent(ctx context.Context, organizationID int64, env domain.Envelope) error
}
