// Package hook is the integration point the AS2 host invokes once per stored
// inbound message. It records the message in the audit log and then
// announces it, keeping each failure away from the receipt path.
package hook

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// AuditLog records messages and owns a rotation task.
type AuditLog interface {
	Record(msg models.ReceivedMessage) error
	Start(ctx context.Context) error
	Stop() error
}

// Notifier announces messages.
type Notifier interface {
	Notify(ctx context.Context, msg models.ReceivedMessage) error
	Close(ctx context.Context) error
}

// Coordinator fans a received message out to the audit log and the notifier.
type Coordinator struct {
	audit    AuditLog
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewCoordinator wires the two components. Either may be nil to disable it.
func NewCoordinator(audit AuditLog, notifier Notifier, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Received builds the message snapshot from host metadata and handles it.
func (c *Coordinator) Received(ctx context.Context, messageID, senderID, receiverID string, payloadSize int64, payloadFilename string) {
	c.OnMessageReceived(ctx, models.NewReceivedMessage(messageID, senderID, receiverID, payloadSize, payloadFilename, c.now()))
}

// OnMessageReceived records msg, then notifies. msg is normalized first, so
// both components see the same UNKNOWN substitutions, clamped size, fallback
// filename and timestamp. Neither step can stop the other and no error or
// panic escapes to the caller.
func (c *Coordinator) OnMessageReceived(ctx context.Context, msg models.ReceivedMessage) {
	msg = msg.Normalize(c.now())
	ctx = logging.ContextWithMessageID(ctx, msg.MessageID)

	if c.audit != nil {
		if err := c.guard("audit log", func() error { return c.audit.Record(msg) }); err != nil {
			c.logger.ErrorContext(ctx, "Failed to log AS2 message", logging.Error(err))
		}
	}

	if c.notifier != nil {
		if err := c.guard("notification", func() error { return c.notifier.Notify(ctx, msg) }); err != nil {
			c.logger.ErrorContext(ctx, "Failed to notify AS2 message", logging.Error(err))
		}
	}
}

func (c *Coordinator) guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in receipt hook",
				"step", step,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%s panicked: %v", step, r)
		}
	}()
	return fn()
}

// Start launches the audit log rotation task.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.audit == nil {
		return nil
	}
	return c.audit.Start(ctx)
}

// Shutdown stops rotation with its bounded grace period, then closes the
// notifier, waiting for in-flight notifications until ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	var errs []error
	if c.audit != nil {
		if err := c.audit.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop audit log rotation: %w", err))
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	return errors.Join(errs...)
}
