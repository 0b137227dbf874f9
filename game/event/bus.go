package event

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// ErrInterrupt signals that a handler wants to stop further delivery of the event.
var ErrInterrupt = errors.New("event interrupted")

// Handler receives one published event.
// Returning ErrInterrupt stops delivery to lower-priority handlers; any other
// error is collected and delivery continues.
type Handler func(ctx context.Context, kind string, sender, payload any) error

type subscription struct {
	priority int
	name     string
	fn       Handler
}

// Bus routes published events to the handlers subscribed to their kind.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe adds fn for kind with the given priority (lower runs first).
// A second subscription with the same kind and name replaces the first.
func (b *Bus) Subscribe(kind string, priority int, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[kind]
	for i, s := range entries {
		if s.name == name {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	entries = append(entries, &subscription{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	b.subs[kind] = entries
}

// Unsubscribe removes the named handler for kind. Unknown names are ignored.
func (b *Bus) Unsubscribe(kind, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = without(b.subs[kind], name)
	if len(b.subs[kind]) == 0 {
		delete(b.subs, kind)
	}
}

// UnsubscribeAll removes every handler registered under name.
func (b *Bus) UnsubscribeAll(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, entries := range b.subs {
		if rest := without(entries, name); len(rest) > 0 {
			b.subs[kind] = rest
		} else {
			delete(b.subs, kind)
		}
	}
}

// without returns a fresh slice so snapshots taken by Publish stay intact.
func without(entries []*subscription, name string) []*subscription {
	out := make([]*subscription, 0, len(entries))
	for _, s := range entries {
		if s.name != name {
			out = append(out, s)
		}
	}
	return out
}

// Subscribers returns how many handlers are subscribed to kind.
func (b *Bus) Subscribers(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Publish delivers the event to a snapshot of kind's handlers in priority
// order, so handlers may subscribe or unsubscribe while it runs.
func (b *Bus) Publish(ctx context.Context, kind string, sender, payload any) error {
	b.mu.RLock()
	entries := make([]*subscription, len(b.subs[kind]))
	copy(entries, b.subs[kind])
	b.mu.RUnlock()

	var errs error
	for _, s := range entries {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		err := s.fn(ctx, kind, sender, payload)
		if errors.Is(err, ErrInterrupt) {
			return errs
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}
