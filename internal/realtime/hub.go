package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// DefaultBufferSize is the per-connection event buffer.
const DefaultBufferSize = 64

// ErrConnectionNotFound is returned for unknown or closed connection ids.
var ErrConnectionNotFound = errors.New("connection not found")

// Conn is one client connection registered with the hub.
type Conn struct {
	ID     string
	UserID string
	Role   models.Role

	events chan Event
	done   chan struct{}
	once   sync.Once
	groups map[GroupKey]struct{} // guarded by Hub.mu
}

// Events returns the buffered event stream.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed when the connection is removed from the hub.
func (c *Conn) Done() <-chan struct{} { return c.done }

// send enqueues ev without blocking. A full buffer drops the event.
func (c *Conn) send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		metrics.RealtimeEventsDropped.Inc()
		return false
	}
}

type group struct {
	members     map[string]*Conn
	unsubscribe func()
}

// Hub tracks connections and their group memberships on this instance and
// routes broker traffic to them.
type Hub struct {
	broker     Broker
	logger     *zap.Logger
	bufferSize int

	mu     sync.Mutex
	conns  map[string]*Conn
	groups map[GroupKey]*group
}

// NewHub creates a hub on top of broker.
func NewHub(broker Broker, logger *zap.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		broker:     broker,
		logger:     logger,
		bufferSize: bufferSize,
		conns:      make(map[string]*Conn),
		groups:     make(map[GroupKey]*group),
	}
}

// Connect registers a connection for the user, joins its user and role
// groups and queues a connected event.
func (h *Hub) Connect(userID string, role models.Role) (*Conn, error) {
	c := &Conn{
		ID:     uuid.New().String(),
		UserID: userID,
		Role:   role,
		events: make(chan Event, h.bufferSize),
		done:   make(chan struct{}),
		groups: make(map[GroupKey]struct{}),
	}

	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()

	for _, key := range []GroupKey{UserGroup(userID), RoleGroup(role)} {
		if err := h.Join(c.ID, key); err != nil {
			h.Disconnect(c)
			return nil, err
		}
	}

	c.send(Event{Name: EventConnected, Data: map[string]string{"connectionId": c.ID}})
	h.logger.Debug("realtime client connected",
		zap.String("connection_id", c.ID), zap.String("user_id", userID))
	return c, nil
}

// Disconnect removes c from every group. Safe to call more than once.
func (h *Hub) Disconnect(c *Conn) {
	c.once.Do(func() {
		h.mu.Lock()
		for key := range c.groups {
			h.leaveLocked(c, key)
		}
		delete(h.conns, c.ID)
		h.mu.Unlock()

		close(c.done)
		metrics.RealtimeConnections.Dec()
		h.logger.Debug("realtime client disconnected", zap.String("connection_id", c.ID))
	})
}

// Conn looks up a live connection.
func (h *Hub) Conn(id string) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	return c, ok
}

// Join adds the connection to a group, subscribing this instance to the
// group on first use.
func (h *Hub) Join(connID string, key GroupKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	if _, joined := c.groups[key]; joined {
		return nil
	}

	g, ok := h.groups[key]
	if !ok {
		unsubscribe, err := h.broker.Subscribe(key, func(ev Event) { h.deliver(key, ev) })
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
		g = &group{members: make(map[string]*Conn), unsubscribe: unsubscribe}
		h.groups[key] = g
	}
	g.members[c.ID] = c
	c.groups[key] = struct{}{}
	return nil
}

// Leave removes the connection from a group.
func (h *Hub) Leave(connID string, key GroupKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	h.leaveLocked(c, key)
	return nil
}

func (h *Hub) leaveLocked(c *Conn, key GroupKey) {
	delete(c.groups, key)
	g, ok := h.groups[key]
	if !ok {
		return
	}
	delete(g.members, c.ID)
	if len(g.members) == 0 {
		g.unsubscribe()
		delete(h.groups, key)
	}
}

// Publish sends an event to every connection in the group on every instance.
func (h *Hub) Publish(ctx context.Context, key GroupKey, name string, data any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := h.broker.Publish(ctx, key, Event{Name: name, Data: data}); err != nil {
		return err
	}
	metrics.RealtimeEventsPublished.WithLabelValues(string(key.Kind)).Inc()
	return nil
}

// SendTo delivers an event to a single local connection.
func (h *Hub) SendTo(connID, name string, data any) error {
	c, ok := h.Conn(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	c.send(Event{Name: name, Data: data})
	return nil
}

// deliver fans a broker event out to local group members.
func (h *Hub) deliver(key GroupKey, ev Event) {
	h.mu.Lock()
	g, ok := h.groups[key]
	var members []*Conn
	if ok {
		members = make([]*Conn, 0, len(g.members))
		for _, c := range g.members {
			members = append(members, c)
		}
	}
	h.mu.Unlock()

	for _, c := range members {
		if !c.send(ev) {
			h.logger.Debug("realtime event dropped",
				zap.String("connection_id", c.ID), zap.String("event", ev.Name))
		}
	}
}

// Close disconnects every connection and closes the broker.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.Disconnect(c)
	}
	return h.broker.Close()
}
