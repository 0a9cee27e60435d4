package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

type recordingBroadcaster struct {
	organizationIDs []int64
	envelopes       []domain.Envelope
}

func (b *recordingBroadcaster) Broadcast(organizationID int64, env domain.Envelope) {
	b.organizationIDs = append(b.organizationIDs, organizationID)
	b.envelopes = append(b.envelopes, env)
}

func TestDomainEventConsumer_HandleMessage(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	consumer := NewDomainEventConsumer(broadcaster, zaptest.NewLogger(t))

	payload, err := json.Marshal(DomainEventMessage{
		OrganizationID: 10,
		Event:          domain.NewEnvelope(domain.EventTaskUpdated, map[string]any{"task_id": 5}),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	msg := &sarama.ConsumerMessage{Topic: "timetracker.domain-events", Value: payload}
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(broadcaster.envelopes) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(broadcaster.envelopes))
	}
	if broadcaster.organizationIDs[0] != 10 {
		t.Fatalf("expected organization 10, got %d", broadcaster.organizationIDs[0])
	}
	if broadcaster.envelopes[0].Type != domain.EventTaskUpdated {
		t.Fatalf("expected task_updated, got %s", broadcaster.envelopes[0].Type)
	}
}

func TestDomainEventConsumer_RejectsGarbage(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	consumer := NewDomainEventConsumer(broadcaster, zaptest.NewLogger(t))

	msg := &sarama.ConsumerMessage{Value: []byte("{not json")}
	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected decode error")
	}
	if len(broadcaster.envelopes) != 0 {
		t.Fatalf("expected no broadcast for garbage input")
	}
}

func TestDomainEventConsumer_SkipsIncompleteEvents(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	consumer := NewDomainEventConsumer(broadcaster, zaptest.NewLogger(t))

	payload, _ := json.Marshal(DomainEventMessage{OrganizationID: 0, Event: domain.Envelope{Type: "task_updated"}})
	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: payload}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(broadcaster.envelopes) != 0 {
		t.Fatalf("expected incomplete event to be skipped")
	}
}

func TestDomainEventConsumer_NilMessage(t *testing.T) {
	consumer := NewDomainEventConsumer(&recordingBroadcaster{}, zaptest.NewLogger(t))
	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
}
