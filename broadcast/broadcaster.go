package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
)

// Options configures a Broadcaster.
type Options struct {
	// BufferSize sets the per-subscriber channel buffer. Larger buffers
	// tolerate slower listeners before events are dropped.
	BufferSize int
	// Logger records dropped deliveries. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Broadcaster fans lifecycle events out to subscribers. Publish never blocks
// on a listener: delivery into a full subscriber buffer is dropped with a
// warning. Fan-out happens synchronously in publish call order, which is what
// preserves per-source ordering for subscribers.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	logger     logging.Logger
	closed     bool
}

// New constructs a Broadcaster with optional overrides.
func New(optFns ...func(o *Options)) *Broadcaster {
	opts := Options{
		BufferSize: 64,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Broadcaster{
		subs:       make(map[string]*Subscription),
		bufferSize: opts.BufferSize,
		logger:     opts.Logger,
	}
}

// Subscription is one listener's bounded event feed. Close it when done to
// release the feed; the Events channel is closed by the broadcaster.
type Subscription struct {
	id        string
	types     map[core.EventType]struct{}
	ch        chan core.Event
	b         *Broadcaster
	closeOnce sync.Once
}

// Events returns the receive channel for this subscription.
func (s *Subscription) Events() <-chan core.Event { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s.id)
		s.b.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(t core.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Subscribe registers a listener. With no types given the subscription
// receives every event; otherwise only the listed types.
func (b *Broadcaster) Subscribe(types ...core.EventType) *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan core.Event, b.bufferSize),
		b:  b,
	}
	if len(types) > 0 {
		sub.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscriber. Fire-and-forget:
// it never blocks and never returns an error to the caller.
func (b *Broadcaster) Publish(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber", "type", ev.Type, "source", ev.Source)
		}
	}
}

// Close detaches all subscribers and closes their channels. Publishing after
// Close is a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
