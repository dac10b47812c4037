package mq

import (
	"context"
	"time"
)

// Producer publishes domain events to a broker.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	Ping(ctx context.Context) error
	Close() error
}

// Message is a broker-neutral event envelope.
type Message struct {
	ID string `json:"id"`
	// Key selects the partition; events of one room share a key so they stay ordered.
	Key       string            `json:"key"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
