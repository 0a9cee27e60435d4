package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
	"github.com/fr0schler/timetracker-realtime/internal/core/port"
)

const defaultTypingClearDelay = 3 * time.Second

// Registry tracks which users are connected to this process, grouped by
// organization. It owns presence broadcasts and typing indicator state.
//
// Structural invariant: the nested maps never hold empty nodes. A user key
// exists only while at least one of their connections is registered, and an
// organization key only while at least one user is present. Membership in
// the map IS the definition of "online".
type Registry struct {
	logger           *zap.Logger
	metrics          *Metrics
	publisher        port.EventPublisher
	typingClearDelay time.Duration

	mu     sync.Mutex
	conns  map[int64]map[int64][]*Client
	typing map[int64]map[int64]domain.TypingState
}

func NewRegistry(logger *zap.Logger, metrics *Metrics, publisher port.EventPublisher, typingClearDelay time.Duration) *Registry {
	if typingClearDelay <= 0 {
		typingClearDelay = defaultTypingClearDelay
	}
	return &Registry{
		logger:           logger,
		metrics:          metrics,
		publisher:        publisher,
		typingClearDelay: typingClearDelay,
		conns:            make(map[int64]map[int64][]*Client),
		typing:           make(map[int64]map[int64]domain.TypingState),
	}
}

// publishPresence mirrors a presence transition onto the domain events
// topic. Fire-and-forget: a broker failure never affects the room.
func (r *Registry) publishPresence(organizationID int64, env domain.Envelope) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishDomainEvent(context.Background(), organizationID, env); err != nil {
		r.logger.Warn("presence event publish failed",
			zap.Int64("organization_id", organizationID),
			zap.String("event_type", env.Type),
			zap.Error(err))
	}
}

// Register adds a client to its organization room and tells the rest of the
// room the user is online. The announcement repeats for every connection the
// user opens; only user_offline waits for the last one to go away.
func (r *Registry) Register(organizationID int64, client *Client) {
	r.mu.Lock()
	users, ok := r.conns[organizationID]
	if !ok {
		users = make(map[int64][]*Client)
		r.conns[organizationID] = users
	}
	firstConnection := len(users[client.UserID]) == 0
	users[client.UserID] = append(users[client.UserID], client)
	r.mu.Unlock()

	r.metrics.Connections.Inc()
	r.logger.Debug("connection registered",
		zap.Int64("organization_id", organizationID),
		zap.Int64("user_id", client.UserID),
		zap.String("conn_id", client.ConnID))

	env := domain.NewPresenceEnvelope(domain.EventUserOnline, client.UserID)
	r.BroadcastExcept(organizationID, env, client.UserID)
	if firstConnection {
		// The event stream stays symmetric: one online per offline.
		r.publishPresence(organizationID, env)
	}
}

// Unregister removes a client. Unknown clients are tolerated so that the
// gateway's shutdown path and a broadcast-detected failure can both call it.
// When the user's last connection goes away their typing state is dropped
// and the room is told they went offline.
func (r *Registry) Unregister(organizationID int64, client *Client) {
	r.mu.Lock()
	users, ok := r.conns[organizationID]
	if !ok {
		r.mu.Unlock()
		return
	}

	list := users[client.UserID]
	found := false
	for i, c := range list {
		if c == client {
			list = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return
	}

	lastConnection := len(list) == 0
	if lastConnection {
		delete(users, client.UserID)
		if states, ok := r.typing[organizationID]; ok {
			delete(states, client.UserID)
			if len(states) == 0 {
				delete(r.typing, organizationID)
			}
		}
		if len(users) == 0 {
			delete(r.conns, organizationID)
		}
	} else {
		users[client.UserID] = list
	}
	r.mu.Unlock()

	client.Close()
	r.metrics.Connections.Dec()
	r.logger.Debug("connection unregistered",
		zap.Int64("organization_id", organizationID),
		zap.Int64("user_id", client.UserID),
		zap.String("conn_id", client.ConnID))

	if lastConnection {
		env := domain.NewPresenceEnvelope(domain.EventUserOffline, client.UserID)
		r.BroadcastExcept(organizationID, env, client.UserID)
		r.publishPresence(organizationID, env)
	}
}

// Broadcast delivers env to every connection in the organization room.
func (r *Registry) Broadcast(organizationID int64, env domain.Envelope) {
	r.BroadcastExcept(organizationID, env, 0)
}

// BroadcastExcept delivers env to every connection in the room except those
// belonging to excludeUserID. Enqueueing is non-blocking: connections that
// cannot accept the envelope are collected during the pass and unregistered
// after it completes, so one dead socket never stalls the room.
func (r *Registry) BroadcastExcept(organizationID int64, env domain.Envelope, excludeUserID int64) {
	r.mu.Lock()
	users := r.conns[organizationID]
	targets := make([]*Client, 0, len(users))
	for userID, clients := range users {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, clients...)
	}
	r.mu.Unlock()

	r.metrics.Broadcasts.Inc()

	var failed []*Client
	for _, client := range targets {
		if !client.Enqueue(env) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		r.metrics.SendFailures.Inc()
		r.logger.Warn("dropping unresponsive connection",
			zap.Int64("organization_id", organizationID),
			zap.Int64("user_id", client.UserID),
			zap.String("conn_id", client.ConnID),
			zap.String("event_type", env.Type))
		r.Unregister(organizationID, client)
	}
}

// SendToUser delivers env to every connection a single user holds in the
// room.
func (r *Registry) SendToUser(organizationID int64, userID int64, env domain.Envelope) {
	r.mu.Lock()
	var targets []*Client
	if users, ok := r.conns[organizationID]; ok {
		targets = append(targets, users[userID]...)
	}
	r.mu.Unlock()

	for _, client := range targets {
		if !client.Enqueue(env) {
			r.metrics.SendFailures.Inc()
			r.Unregister(organizationID, client)
		}
	}
}

// HandleTyping records a typing indicator and broadcasts it to the room,
// excluding the typist. A started indicator schedules an auto-clear after
// the configured delay; the clear only fires if the state has not been
// superseded by a newer update in the meantime.
func (r *Registry) HandleTyping(organizationID, userID int64, isTyping bool, typingContext string) {
	state := domain.TypingState{
		IsTyping:  isTyping,
		Context:   typingContext,
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	states, ok := r.typing[organizationID]
	if !ok {
		states = make(map[int64]domain.TypingState)
		r.typing[organizationID] = states
	}
	states[userID] = state
	r.mu.Unlock()

	r.metrics.TypingEvents.Inc()
	r.broadcastTyping(organizationID, userID, state)

	if isTyping {
		scheduled := state.Timestamp
		time.AfterFunc(r.typingClearDelay, func() {
			r.clearTyping(organizationID, userID, scheduled)
		})
	}
}

// clearTyping flips the indicator off if and only if the state recorded at
// scheduling time is still current. Any newer typing update wins.
func (r *Registry) clearTyping(organizationID, userID int64, scheduled time.Time) {
	r.mu.Lock()
	states, ok := r.typing[organizationID]
	if !ok {
		r.mu.Unlock()
		return
	}
	state, ok := states[userID]
	if !ok || !state.Timestamp.Equal(scheduled) || !state.IsTyping {
		r.mu.Unlock()
		return
	}
	state.IsTyping = false
	states[userID] = state
	r.mu.Unlock()

	r.broadcastTyping(organizationID, userID, state)
}

func (r *Registry) broadcastTyping(organizationID, userID int64, state domain.TypingState) {
	env := domain.Envelope{
		Type:      domain.EventTypingStatus,
		UserID:    userID,
		Data:      state,
		Timestamp: time.Now(),
	}
	r.BroadcastExcept(organizationID, env, userID)
}

// OnlineUsers returns the sorted ids of users with at least one registered
// connection in the room.
func (r *Registry) OnlineUsers(organizationID int64) []int64 {
	r.mu.Lock()
	users := r.conns[organizationID]
	ids := make([]int64, 0, len(users))
	for userID := range users {
		ids = append(ids, userID)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectionCount returns the number of registered connections in the room.
func (r *Registry) ConnectionCount(organizationID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, clients := range r.conns[organizationID] {
		total += len(clients)
	}
	return total
}

// TypingStateFor reports the recorded typing state for a user, if any.
func (r *Registry) TypingStateFor(organizationID, userID int64) (domain.TypingState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, ok := r.typing[organizationID]
	if !ok {
		return domain.TypingState{}, false
	}
	state, ok := states[userID]
	return state, ok
}
