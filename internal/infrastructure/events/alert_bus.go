package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one published alert as delivered to subscribers
type Message struct {
	Topic       string      `json:"topic"`
	Payload     interface{} `json:"payload"`
	PublishedAt time.Time   `json:"published_at"`
}

// Bus is an in-process publish/subscribe fan-out for fraud alerts. Delivery
// is best-effort: a subscriber that stops draining its channel loses
// messages rather than blocking analyses.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string][]chan Message
	closed      bool
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string][]chan Message),
	}
}

// subscriberBuffer absorbs short bursts per subscriber before messages drop
const subscriberBuffer = 64

// Publish delivers the payload to every subscriber of the topic
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := Message{Topic: topic, Payload: payload, PublishedAt: time.Now().UTC()}

	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("alert subscriber is not draining, dropping message",
				zap.String("topic", topic))
		}
	}
	return nil
}

// Subscribe registers a new subscriber for a topic. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(topic string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			subs := b.subscribers[topic]
			for i, sub := range subs {
				if sub == ch {
					b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Close shuts the bus down and closes every subscriber channel
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}
