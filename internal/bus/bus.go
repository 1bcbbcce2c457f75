// Package bus provides event bus implementations for radiowatch: an
// in-process bus on Go channels and a NATS bus for multi-process setups.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// MetaReplyTo carries the reply topic of a request message.
const MetaReplyTo = "reply_to"

const defaultRequestTimeout = 30 * time.Second

// New creates an event bus from configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it to topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, data)
}

// Decode unmarshals a message payload into v.
func Decode(msg *domain.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Topic, err)
	}
	return nil
}

// Respond answers a message published by Request.
func Respond(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	replyTo := msg.Metadata[MetaReplyTo]
	if replyTo == "" {
		return fmt.Errorf("message %s has no reply topic", msg.ID)
	}
	return b.Publish(ctx, replyTo, payload)
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// subjectMatches applies NATS subject rules: tokens split on '.', '*'
// matches one token and a trailing '>' matches one or more.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
