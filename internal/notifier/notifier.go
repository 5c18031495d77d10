// Package notifier delivers persisted notifications to external channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "slack").
	Name() string
	// Accepts reports whether the channel wants notifications of type t.
	Accepts(t models.NotificationType) bool
	// Send delivers one notification.
	Send(ctx context.Context, n *models.Notification) error
	// Close releases any resources.
	Close() error
}

// Dispatcher manages multiple notifiers and routes notifications.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(config),
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// Dispatch sends n to every registered notifier that accepts its type.
// One token is consumed per notification and refunded when every channel
// fails. Returns ErrRateLimited if the notification is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	d.mu.RLock()
	targets := make([]Notifier, 0, len(d.notifiers))
	for _, nt := range d.notifiers {
		if nt.Accepts(n.Type) {
			targets = append(targets, nt)
		}
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	reservation, ok := d.rateLimiter.Reserve()
	if !ok {
		for _, nt := range targets {
			metrics.NotificationsDispatched.WithLabelValues(nt.Name(), "throttled").Inc()
		}
		return ErrRateLimited
	}

	var errs []error
	for _, nt := range targets {
		if err := nt.Send(ctx, n); err != nil {
			metrics.NotificationsDispatched.WithLabelValues(nt.Name(), "failure").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", nt.Name(), err))
			continue
		}
		metrics.NotificationsDispatched.WithLabelValues(nt.Name(), "success").Inc()
	}

	if len(errs) == len(targets) {
		reservation.Cancel()
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
