// Package messaging defines the broker-neutral types used by the AS2 hook
// service to receive host events and publish dead letters.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional message headers.
	Metadata map[string]string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// PublishMsg sends msg with its Metadata as headers.
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// QueueSubscribe load-balances messages across subscribers sharing queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)

	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain gracefully closes the connection, allowing in-flight messages to complete.
	Drain() error

	IsConnected() bool

	// RTT measures a round trip to the broker.
	RTT() (time.Duration, error)
}

// PublishOption configures message publishing behavior.
type PublishOption func(*PublishOptions)

// PublishOptions collects the effect of PublishOption values.
type PublishOptions struct {
	Headers map[string]string
}

// WithHeader adds a header to the published message.
func WithHeader(key, value string) PublishOption {
	return func(o *PublishOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// NewMessage builds a Message for subject with the given options applied.
func NewMessage(subject string, data []byte, opts ...PublishOption) *Message {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Message{
		Subject:   subject,
		Data:      data,
		Metadata:  o.Headers,
		Timestamp: time.Now(),
	}
}
