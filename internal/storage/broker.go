package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/realtime"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisTopicPrefix = "chat:"

// Broker carries message inserts between processes or within one.
type Broker interface {
	Publish(ctx context.Context, key string, msg models.Message) error
	Subscribe(ctx context.Context, key string, handler MessageHandler) (Subscription, error)
}

// subscription is shared by both brokers: stop tears down the transport,
// done closes once the delivery goroutine exits.
type subscription struct {
	stop    func()
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func newSubscription(stop func()) *subscription {
	return &subscription{stop: stop, done: make(chan struct{})}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.stop()
	})
	return nil
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) deliver(handler MessageHandler, msg models.Message) {
	if s.stopped.Load() {
		return
	}
	handler(msg)
}

// LocalBroker delivers inserts inside the current process.
type LocalBroker struct {
	dispatcher *realtime.Dispatcher[models.Message]
}

// NewLocalBroker returns a broker backed by an in-process dispatcher.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{dispatcher: realtime.NewDispatcher[models.Message](0)}
}

func (b *LocalBroker) Publish(_ context.Context, key string, msg models.Message) error {
	b.dispatcher.Publish(key, msg)
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, key string, handler MessageHandler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	stream, cleanup := b.dispatcher.Subscribe(subCtx, key)
	sub := newSubscription(func() {
		cancel()
		cleanup()
	})
	go func() {
		defer close(sub.done)
		defer cancel()
		for msg := range stream {
			sub.deliver(handler, msg)
		}
	}()
	return sub, nil
}

// RedisBroker publishes inserts as JSON on chat:{kind}_{id} so every API
// instance sees them.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, key string, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisTopicPrefix+key, payload).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// no insert published afterwards is missed.
//
// go-redis reconnects and resubscribes on its own, dropping whatever was
// published in between. A second subscribe confirmation therefore ends the
// subscription, so Done fires and the caller reloads instead of missing
// messages silently.
func (b *RedisBroker) Subscribe(ctx context.Context, key string, handler MessageHandler) (Subscription, error) {
	topic := redisTopicPrefix + key
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := newSubscription(func() { _ = pubsub.Close() })
	go b.pump(ctx, topic, pubsub.ChannelWithSubscriptions(), sub, handler)
	return sub, nil
}

// pump delivers messages from stream until ctx ends, the stream closes or
// the connection is re-established.
func (b *RedisBroker) pump(ctx context.Context, topic string, stream <-chan any, sub *subscription, handler MessageHandler) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case raw, ok := <-stream:
			if !ok {
				return
			}
			switch raw := raw.(type) {
			case *redis.Subscription:
				if raw.Kind != "subscribe" {
					continue
				}
				b.logger.Warn("redis subscription re-established, closing to force reload",
					zap.String("topic", topic))
				_ = sub.Close()
				return
			case *redis.Message:
				var msg models.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("error unmarshalling redis message", zap.String("topic", topic), zap.Error(err))
					continue
				}
				sub.deliver(handler, msg)
			}
		}
	}
}
