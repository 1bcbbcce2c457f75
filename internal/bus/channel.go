package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/metrics"
)

// ErrBusClosed is returned by operations on a closed bus.
var ErrBusClosed = errors.New("bus is closed")

// ChannelBus implements EventBus in process using Go channels. Each
// subscription owns a buffered channel drained by one goroutine, so a
// handler sees its messages in publish order. A full buffer drops the
// message for that subscriber.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a channel bus whose subscriptions buffer up to
// bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string]*channelSubscription),
	}
}

// Publish delivers payload to every subscription whose topic pattern
// matches topic.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.publish(newMessage(topic, payload))
}

func (b *ChannelBus) publish(msg *domain.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	metrics.BusPublishedTotal.WithLabelValues(msg.Topic).Inc()
	for _, sub := range b.subscriptions {
		if !subjectMatches(sub.topic, msg.Topic) {
			continue
		}
		select {
		case sub.msgCh <- msg:
		default:
			slog.Warn("subscriber buffer full, message dropped",
				"topic", msg.Topic,
				"subscription", sub.id,
			)
		}
	}
	return nil
}

// Subscribe registers handler for topic. Topic may use the '*' and '>'
// wildcards. The subscription ends when ctx is cancelled, on Unsubscribe,
// or when the bus closes.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}
	b.subscriptions[sub.id] = sub

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	defer s.bus.remove(s.id)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			metrics.BusDeliveredTotal.WithLabelValues(msg.Topic).Inc()
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

func (b *ChannelBus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// Request publishes payload with a private reply topic and waits for the
// first answer sent with Respond.
func (b *ChannelBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	replyCh := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.NewString()

	sub, err := b.Subscribe(ctx, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg := newMessage(topic, payload)
	msg.Metadata[MetaReplyTo] = replyTopic
	if err := b.publish(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(defaultRequestTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request to %s timed out", topic)
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

// Close cancels every subscription. Further calls fail with ErrBusClosed.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*channelSubscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

// SubscriptionCount returns the number of live subscriptions.
func (b *ChannelBus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
