package feed

import (
	"context"
	"sync"
	"time"
)

// Event types published on the live feeds.
const (
	TypePrayerCreated             = "prayer_created"
	TypePrayerDeleted             = "prayer_deleted"
	TypeReactionAdded             = "reaction_added"
	TypeReactionRemoved           = "reaction_removed"
	TypeReactionUpdated           = "reaction_updated"
	TypeTestimonyAdded            = "testimony_added"
	TypeTestimonyDeleted          = "testimony_deleted"
	TypeTestimonyReactionAdded    = "testimony_reaction_added"
	TypeTestimonyReactionRemoved  = "testimony_reaction_removed"
	TypeTestimonyReactionUpdated  = "testimony_reaction_updated"
	TypePing                      = "ping"
)

// Event is the tagged record broadcast to live-feed subscribers.
type Event struct {
	Type        string `json:"type"`
	PrayerID    string `json:"prayer_id,omitempty"`
	TestimonyID string `json:"testimony_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Reaction    string `json:"reaction,omitempty"`
	OldReaction string `json:"old_reaction,omitempty"`
	NewReaction string `json:"new_reaction,omitempty"`
	Payload     any    `json:"payload,omitempty"`
}

// Bus fans events out to all active subscribers of one feed. Publish never
// blocks and nothing is buffered for absent subscribers: a consumer only sees
// events published while it is attached. When a subscriber sees no traffic
// for the keep-alive interval it receives a synthetic ping so transport idle
// timeouts do not tear down the connection.
type Bus struct {
	name      string
	keepAlive time.Duration

	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	closed bool

	onSubscribe   func()
	onUnsubscribe func()
}

// Option configures a Bus.
type Option func(*Bus)

// WithSubscriberHooks installs callbacks fired on attach/detach, used to keep
// a subscriber gauge current.
func WithSubscriberHooks(onSubscribe, onUnsubscribe func()) Option {
	return func(b *Bus) {
		b.onSubscribe = onSubscribe
		b.onUnsubscribe = onUnsubscribe
	}
}

// New initialises an empty bus. keepAlive bounds the idle window between
// deliveries on every subscription.
func New(name string, keepAlive time.Duration, opts ...Option) *Bus {
	b := &Bus{
		name:      name,
		keepAlive: keepAlive,
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the feed name.
func (b *Bus) Name() string { return b.name }

// Subscribe registers a subscriber and returns a channel producing every
// event published after this call, interleaved with pings during idle
// periods. The channel is closed when ctx ends or the bus is closed;
// cancellation is noticed promptly without requiring a published event.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	in := make(chan Event, 16)
	out := make(chan Event, 16)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out
	}
	id := b.next
	b.next++
	b.subs[id] = in
	b.mu.Unlock()

	if b.onSubscribe != nil {
		b.onSubscribe()
	}

	go func() {
		defer func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
			}
			b.mu.Unlock()
			close(out)
			if b.onUnsubscribe != nil {
				b.onUnsubscribe()
			}
		}()

		timer := time.NewTimer(b.keepAlive)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(b.keepAlive)
			case <-timer.C:
				select {
				case out <- Event{Type: TypePing}:
				default:
					// Subscriber is not draining; skip the ping.
				}
				timer.Reset(b.keepAlive)
			}
		}
	}()

	return out
}

// Publish fans the event out to all subscribers. Slow subscribers are
// skipped rather than blocking the publisher; with zero subscribers the
// event is dropped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close detaches every subscriber and rejects further publishes. Intended
// for process shutdown and test isolation.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
