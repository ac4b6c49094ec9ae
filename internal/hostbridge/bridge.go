// Package hostbridge consumes "message received" events that an AS2 host
// publishes on NATS and hands them to the receipt hook.
package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/common/messaging"
	"github.com/telhawk-systems/as2hooks/internal/metrics"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// Receiver handles one received message.
type Receiver interface {
	OnMessageReceived(ctx context.Context, msg models.ReceivedMessage)
}

// Bridge subscribes to SubjectMessagesReceived in the shared worker queue.
type Bridge struct {
	subscriber messaging.Subscriber
	receiver   Receiver
	logger     *logging.Logger
	now        func() time.Time

	mu  sync.Mutex
	sub messaging.Subscription
}

// New creates a Bridge. Call Start to begin consuming.
func New(subscriber messaging.Subscriber, receiver Receiver, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{
		subscriber: subscriber,
		receiver:   receiver,
		logger:     logger,
		now:        time.Now,
	}
}

// Start subscribes. Calling Start twice is an error.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return fmt.Errorf("host bridge already started")
	}

	sub, err := b.subscriber.QueueSubscribe(messaging.SubjectMessagesReceived, messaging.QueueHookWorkers, b.Handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messaging.SubjectMessagesReceived, err)
	}
	b.sub = sub

	b.logger.Info("host bridge subscribed",
		logging.Subject(messaging.SubjectMessagesReceived),
		logging.Queue(messaging.QueueHookWorkers),
	)
	return nil
}

// Stop unsubscribes; it is a no-op when not started.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

// Handle decodes one event and passes it to the receiver. A malformed
// payload is reported as an error and never reaches the receiver.
func (b *Bridge) Handle(ctx context.Context, msg *messaging.Message) error {
	var event models.ReceivedMessage
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		metrics.BridgeEventsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("decode %s event: %w", msg.Subject, err)
	}

	b.receiver.OnMessageReceived(ctx, event.Normalize(b.now()))
	metrics.BridgeEventsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Publish emits msg on SubjectMessagesReceived the way a host would.
func Publish(ctx context.Context, pub messaging.Publisher, msg models.ReceivedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return pub.PublishMsg(ctx, messaging.NewMessage(messaging.SubjectMessagesReceived, data,
		messaging.WithHeader(messaging.HeaderMessageID, msg.MessageID)))
}
