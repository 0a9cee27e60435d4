package port

import "github.com/fr0schler/timetracker-realtime/internal/core/domain"

// Broadcaster is the fire-and-forget producer boundary consumed by the CRUD
// services and the Kafka intake. Producers receive no delivery confirmation;
// fan-out is best-effort, at most once per connection.
type Broadcaster interface {
	Broadcast(organizationID int64, env domain.Envelope)
}
