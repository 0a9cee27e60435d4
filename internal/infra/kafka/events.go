package kafka

import (
	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

// DomainEventMessage is the wire shape carried on the domain events topic.
// Other services publish these to have the gateway fan them out to the
// organization's connected clients.
type DomainEventMessage struct {
	OrganizationID int64           `json:"organization_id"`
	Event          domain.Envelope `json:"event"`
}
