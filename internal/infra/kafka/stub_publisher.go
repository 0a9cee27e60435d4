package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) PublishDomainEvent(_ context.Context, organizationID int64, env domain.Envelope) error {
	p.logger.Info("Stub event published",
		zap.Int64("organization_id", organizationID),
		zap.String("event_type", env.Type),
		zap.Int64("user_id", env.UserID),
		zap.Time("timestamp", env.Timestamp),
	)
	return nil
}
