package events

import (
	"sync"

	"github.com/roosthq/roost/pkg/protocol"
)

// DefaultSubscriptionBuffer bounds how many frames a slow subscriber may
// have queued before the oldest are dropped
const DefaultSubscriptionBuffer = 1000

// Bus distributes ingested frames to subscribers keyed by instance id.
// Frames for one instance are delivered in publication order (FIFO);
// there is no ordering across instances.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]bool
}

// NewBus creates a new fan-out bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]bool),
	}
}

// Subscription receives the frames published for its instance set. A
// subscriber that falls more than its buffer behind loses the oldest
// frames; a log:dropped sentinel marks the gap.
type Subscription struct {
	bus *Bus

	mu        sync.Mutex
	cond      *sync.Cond
	instances map[string]bool
	buf       []*protocol.Envelope
	limit     int
	dropped   int
	closed    bool

	out  chan *protocol.Envelope
	done chan struct{}
}

// Subscribe creates a subscription for the given instance ids. With no
// ids the subscription receives every instance. Buffer <= 0 selects the
// default bound.
func (b *Bus) Subscribe(buffer int, instanceIDs ...string) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	sub := &Subscription{
		bus:       b,
		instances: make(map[string]bool),
		limit:     buffer,
		out:       make(chan *protocol.Envelope),
		done:      make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	for _, id := range instanceIDs {
		sub.instances[id] = true
	}

	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// Publish delivers a frame to every subscription watching instanceID
func (b *Bus) Publish(instanceID string, env *protocol.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		sub.enqueue(instanceID, env)
	}
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C is the delivery channel. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan *protocol.Envelope {
	return s.out
}

// SetInstances replaces the watched instance set
func (s *Subscription) SetInstances(instanceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = make(map[string]bool, len(instanceIDs))
	for _, id := range instanceIDs {
		s.instances[id] = true
	}
}

// Watching reports whether the subscription covers instanceID
func (s *Subscription) Watching(instanceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances) == 0 || s.instances[instanceID]
}

func (s *Subscription) enqueue(instanceID string, env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.instances) > 0 && !s.instances[instanceID] {
		return
	}
	if len(s.buf) >= s.limit {
		// Drop the oldest frame; the sentinel is emitted ahead of the
		// surviving frames so the gap position is visible.
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, env)
	s.cond.Signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

// pump moves frames from the bounded buffer to the delivery channel,
// inserting a log:dropped sentinel whenever frames were lost since the
// last delivery
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for !s.closed && len(s.buf) == 0 && s.dropped == 0 {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		var env *protocol.Envelope
		if s.dropped > 0 {
			env = protocol.NewFrame(protocol.ChannelLogs, protocol.TypeLogDropped, "", &protocol.LogDropped{Count: s.dropped})
			s.dropped = 0
		} else {
			env = s.buf[0]
			s.buf = s.buf[1:]
		}
		s.mu.Unlock()

		select {
		case s.out <- env:
		case <-s.done:
			return
		}
	}
}
