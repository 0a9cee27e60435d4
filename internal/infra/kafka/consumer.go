package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
)

// DomainEventConsumer fans Kafka domain events out to the local
// organization rooms.
type DomainEventConsumer struct {
	broadcaster port.Broadcaster
	logger      *zap.Logger
}

// NewDomainEventConsumer constructs a consumer that relays domain events to
// connected clients.
func NewDomainEventConsumer(broadcaster port.Broadcaster, logger *zap.Logger) *DomainEventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainEventConsumer{broadcaster: broadcaster, logger: logger}
}

// HandleMessage decodes a Kafka message and broadcasts it to the room.
func (c *DomainEventConsumer) HandleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var event DomainEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode domain event: %w", err)
	}
	if event.OrganizationID == 0 || event.Event.Type == "" {
		c.logger.Debug("skipping incomplete domain event",
			zap.Int64("organization_id", event.OrganizationID),
			zap.String("event_type", event.Event.Type))
		return nil
	}

	c.broadcaster.Broadcast(event.OrganizationID, event.Event)
	return nil
}

// ConsumerGroup runs a DomainEventConsumer against a Kafka consumer group.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	handler *DomainEventConsumer
	cfg     config.KafkaSettings
	logger  *zap.Logger
}

func NewConsumerGroup(cfg config.KafkaSettings, handler *DomainEventConsumer, logger *zap.Logger) (*ConsumerGroup, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &ConsumerGroup{
		group:   group,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (g *ConsumerGroup) Run(ctx context.Context) error {
	handler := &groupHandler{consumer: g.handler, logger: g.logger}
	topics := []string{g.cfg.Topic}

	for {
		if err := g.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			g.logger.Error("kafka consume failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close shuts down the consumer group.
func (g *ConsumerGroup) Close() error {
	return g.group.Close()
}

type groupHandler struct {
	consumer *DomainEventConsumer
	logger   *zap.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.consumer.HandleMessage(session.Context(), msg); err != nil {
			h.logger.Warn("dropping unprocessable domain event",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
