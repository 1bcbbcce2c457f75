package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" koanf:"type" validate:"oneof=channel nats"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" koanf:"channel_buffer_size" validate:"gte=0"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" koanf:"nats_url"`
	NATSToken         string `json:"-" koanf:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" koanf:"nats_reconnect_wait"` // seconds
}

// Standard topic names for the scoring pipeline.
const (
	TopicScoreRecompute = "radiowatch.score.recompute"
	TopicTagChanged     = "radiowatch.tag.changed"
	TopicScoreUpdated   = "radiowatch.score.updated"
	TopicThreatAlert    = "radiowatch.threat.alert"
)

// RecomputeRequest is the payload of TopicScoreRecompute. An empty
// NetworkIDs list recomputes every network.
type RecomputeRequest struct {
	RunID      string   `json:"runId"`
	NetworkIDs []string `json:"networkIds,omitempty"`
}

// TagChangedEvent is the payload of TopicTagChanged.
type TagChangedEvent struct {
	NetworkID string  `json:"networkId"`
	TagType   TagType `json:"tagType,omitempty"`
	Deleted   bool    `json:"deleted"`
}

// ScoreEvent is the payload of TopicScoreUpdated and TopicThreatAlert.
type ScoreEvent struct {
	NetworkID         string      `json:"networkId"`
	FinalScore        float64     `json:"finalScore"`
	FinalLevel        ThreatLevel `json:"finalLevel"`
	ThreatType        string      `json:"threatType,omitempty"`
	Candidate         bool        `json:"candidate"`
	TransparencyError bool        `json:"transparencyError"`
	ScoredAt          int64       `json:"scoredAt"`
}
