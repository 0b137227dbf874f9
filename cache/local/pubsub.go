package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
	once     sync.Once
}

// LocalPubSub is an in-process fan-out pub/sub implementation.
// Slow subscribers lose messages instead of blocking publishers.
type LocalPubSub struct {
	mu      sync.RWMutex
	byChan  map[string][]*subscription
	bufSize int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		byChan:  make(map[string][]*subscription),
		bufSize: bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.byChan[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels, and a cancel
// function. Cancel is idempotent and closes the returned channel.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{
		ch:       make(chan *LocalMessage, ps.bufSize),
		channels: channels,
	}
	ps.mu.Lock()
	for _, c := range channels {
		ps.byChan[c] = append(ps.byChan[c], sub)
	}
	ps.mu.Unlock()

	return sub.ch, func() { ps.remove(sub) }, nil
}

func (ps *LocalPubSub) remove(sub *subscription) {
	sub.once.Do(func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		for _, c := range sub.channels {
			list := ps.byChan[c]
			for i, s := range list {
				if s == sub {
					ps.byChan[c] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(ps.byChan[c]) == 0 {
				delete(ps.byChan, c)
			}
		}
		close(sub.ch)
	})
}

// Close cancels every live subscription.
func (ps *LocalPubSub) Close() error {
	ps.mu.RLock()
	seen := make(map[*subscription]struct{})
	for _, list := range ps.byChan {
		for _, s := range list {
			seen[s] = struct{}{}
		}
	}
	ps.mu.RUnlock()
	for s := range seen {
		ps.remove(s)
	}
	return nil
}
