package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisBus implements Bus.
var _ Bus = (*RedisBus)(nil)

// RedisBus implements Bus on Redis pub/sub, one channel per job topic.
// It is the production bus: workers and API replicas are separate
// processes, and Redis preserves single-publisher ordering per channel.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus creates a progress bus on an existing Redis client.
// The caller owns the client and its lifecycle.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

// Publish sends the event to the job's Redis channel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, Topic(event.JobID), data).Err(); err != nil {
		return fmt.Errorf("progress: publish to %s: %w", Topic(event.JobID), err)
	}
	return nil
}

// Subscribe attaches to the job's Redis channel. The returned
// subscription relays decoded events until closed.
func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, Topic(jobID))

	// Wait for the subscription to be confirmed so events published
	// after this call are never missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("progress: subscribe to %s: %w", Topic(jobID), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, subscriberBuffer),
	}

	go sub.relay(b.logger, jobID)
	return sub, nil
}

// redisSubscription adapts a Redis pub/sub handle to Subscription.
type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	once   sync.Once
}

// relay decodes incoming messages onto the event channel until the
// pub/sub handle is closed.
func (s *redisSubscription) relay(logger *slog.Logger, jobID string) {
	defer close(s.ch)

	for msg := range s.pubsub.Channel() {
		event, err := UnmarshalEvent([]byte(msg.Payload))
		if err != nil {
			logger.Warn("dropping undecodable progress event",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.ch <- event
	}
}

// Events returns the delivery channel.
func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

// Close releases the Redis subscription.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
