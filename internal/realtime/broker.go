package realtime

import (
	"context"
	"sync"
)

// Broker carries events between hub instances.
//
// Publish sends ev to every subscriber of key across all instances.
// Subscribe registers fn for key on this instance and returns a function
// that removes it.
type Broker interface {
	Publish(ctx context.Context, key GroupKey, ev Event) error
	Subscribe(key GroupKey, fn func(Event)) (unsubscribe func(), err error)
	Close() error
}

// MemoryBroker is a single-process Broker.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[GroupKey]map[uint64]func(Event)
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[GroupKey]map[uint64]func(Event))}
}

// Publish delivers ev synchronously to local subscribers.
func (b *MemoryBroker) Publish(_ context.Context, key GroupKey, ev Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[key]))
	for _, fn := range b.subs[key] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// Subscribe registers fn for key.
func (b *MemoryBroker) Subscribe(key GroupKey, fn func(Event)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]func(Event))
	}
	b.subs[key][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[key], id)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}, nil
}

// Close drops all subscriptions.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[GroupKey]map[uint64]func(Event))
	return nil
}
