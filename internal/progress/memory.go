package progress

import (
	"context"
	"sync"
)

// Compile-time check that MemoryBus implements Bus.
var _ Bus = (*MemoryBus)(nil)

// subscriberBuffer is the per-subscriber channel depth. A job emits a
// handful of events per stage, so a small buffer absorbs bursts without
// letting one stalled reader grow unbounded state.
const subscriberBuffer = 64

// MemoryBus is an in-process implementation of Bus for tests and
// single-process deployments. Slow subscribers drop events rather than
// block the publisher; clients reconcile from the job record.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

// NewMemoryBus creates a new in-process progress bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish delivers the event to every current subscriber of the job's topic.
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	topic := Topic(event.JobID)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			// Subscriber is not keeping up; drop rather than block the worker.
		}
	}
	return nil
}

// Subscribe attaches a new subscriber to the job's topic.
func (b *MemoryBus) Subscribe(_ context.Context, jobID string) (Subscription, error) {
	topic := Topic(jobID)
	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

// memorySubscription is one subscriber's channel attachment.
type memorySubscription struct {
	bus   *MemoryBus
	topic string
	ch    chan Event
	once  sync.Once
}

// Events returns the delivery channel.
func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber and closes its channel.
func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.topics[s.topic], s)
		if len(s.bus.topics[s.topic]) == 0 {
			delete(s.bus.topics, s.topic)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}
