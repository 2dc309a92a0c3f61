package mq

import (
	"context"
	"fmt"
	"time"
)

// Producer publishes messages to a topic. All messages of one call go out
// as a single broker write.
type Producer interface {
	Publish(ctx context.Context, topic string, messages ...*Message) error
}

// Message is one broker record.
type Message struct {
	ID        string
	Kind      string
	Body      []byte
	Timestamp time.Time
	// Attempt is the 1-based delivery count seen by the handler.
	Attempt int
}

// NewMessage stamps a message with the current time.
func NewMessage(id, kind string, body []byte) *Message {
	return &Message{ID: id, Kind: kind, Body: body, Timestamp: time.Now()}
}

// HandlerFunc processes one message. A non-nil error schedules another attempt.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes one consumer group.
type SubscribeOptions struct {
	Group           string
	Workers         int
	MaxAttempts     int
	Backoff         time.Duration
	DeadLetterTopic string
	// MaxAge acknowledges older messages without handling them.
	MaxAge time.Duration
}

func (o SubscribeOptions) withDefaults(topic string) SubscribeOptions {
	if o.Group == "" {
		o.Group = fmt.Sprintf("hirejudge-%s", topic)
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}
