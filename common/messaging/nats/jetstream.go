package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name     string
	Subjects []string

	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// Duplicates is the window in which a repeated Nats-Msg-Id is dropped.
	Duplicates time.Duration

	// Retention policy (LimitsPolicy, InterestPolicy, WorkQueuePolicy).
	Retention jetstream.RetentionPolicy

	Storage jetstream.StorageType
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config, logger *logging.Logger) (*JetStreamClient, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{
		Client: client,
		js:     js,
	}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Duplicates: cfg.Duplicates,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// PublishSync publishes a message and waits for the stream acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, msg *messaging.Message) (*jetstream.PubAck, error) {
	return c.js.PublishMsg(ctx, messageToNats(msg))
}

// DLQStream retains terminal notification failures until an operator purges them.
// A delivery ID dead-lettered twice within Duplicates is stored once.
var DLQStream = StreamConfig{
	Name:       "AS2HOOKS_DLQ",
	Subjects:   []string{messaging.SubjectDLQPrefix + ".>"},
	MaxAge:     30 * 24 * time.Hour,
	MaxBytes:   256 * 1024 * 1024,
	MaxMsgs:    100000,
	Duplicates: 10 * time.Minute,
	Retention:  jetstream.LimitsPolicy,
	Storage:    jetstream.FileStorage,
}
