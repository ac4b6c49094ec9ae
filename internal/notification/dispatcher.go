package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/telhawk-systems/as2hooks/common/config"
	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/common/signing"
	"github.com/telhawk-systems/as2hooks/internal/dedup"
	"github.com/telhawk-systems/as2hooks/internal/dlq"
	"github.com/telhawk-systems/as2hooks/internal/metrics"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher sends one notification per received message.
type Dispatcher struct {
	cfg     config.HookConfig
	channel Channel
	dlq     dlq.Writer
	dedup   dedup.Store
	logger  *logging.Logger

	// ctx is cancelled by Close; it interrupts backoff sleeps.
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	wait  func(ctx context.Context, d time.Duration) error
	newID func() string
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithChannel replaces the webhook channel built from the config.
func WithChannel(ch Channel) Option {
	return func(d *Dispatcher) { d.channel = ch }
}

// WithDeadLetter records terminal failures in w.
func WithDeadLetter(w dlq.Writer) Option {
	return func(d *Dispatcher) { d.dlq = w }
}

// WithDedup skips messages already delivered according to s.
func WithDedup(s dedup.Store) Option {
	return func(d *Dispatcher) { d.dedup = s }
}

// New validates cfg and returns a ready Dispatcher.
func New(cfg config.HookConfig, logger *logging.Logger, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		dedup:  dedup.NoOpStore{},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		wait:   sleep,
		newID:  uuid.NewString,
	}
	if cfg.MaxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.channel == nil {
		d.channel = NewWebhookChannel(cfg.EndpointURL(), cfg.UserAgent, cfg.Timeout(), signing.NewSigner(cfg.SigningSecret))
	}

	logger.Info("notification dispatcher initialized",
		logging.URL(cfg.EndpointURL()),
		"channel", d.channel.Type(),
		"async", cfg.Async,
		"max_retries", cfg.MaxRetries,
		"retry_delay_ms", cfg.RetryDelayMillis,
	)
	return d, nil
}

// Notify announces msg. In async mode it returns nil at once and the
// delivery, including every retry and its error handling, runs in the
// background. In sync mode it returns the terminal delivery error.
func (d *Dispatcher) Notify(ctx context.Context, msg models.ReceivedMessage) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	if d.cfg.Async {
		d.wg.Add(1)
		d.mu.RUnlock()
		go d.runAsync(msg)
		return nil
	}
	d.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	return d.deliver(ctx, msg)
}

func (d *Dispatcher) runAsync(msg models.ReceivedMessage) {
	defer d.wg.Done()

	if d.sem != nil {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.logger.Warn("notification dropped, dispatcher shutting down", logging.MessageID(msg.MessageID))
			d.deadLetter(d.ctx, msg, "", 0, fmt.Errorf("%w: %w", models.ErrInterrupted, err))
			return
		}
		defer d.sem.Release(1)
	}

	metrics.NotificationsInFlight.Inc()
	defer metrics.NotificationsInFlight.Dec()

	// errors are logged and dead-lettered inside deliver
	_ = d.deliver(d.ctx, msg)
}

// deliver runs the attempt loop: attempt 0 immediately, then after failed
// attempt k wait RetryDelay*2^k, for MaxRetries+1 attempts in total.
func (d *Dispatcher) deliver(ctx context.Context, msg models.ReceivedMessage) error {
	ctx = logging.ContextWithMessageID(ctx, msg.MessageID)

	if seen, err := d.dedup.Seen(ctx, msg.MessageID); err != nil {
		d.logger.WarnContext(ctx, "dedup lookup failed, sending anyway", logging.Error(err))
	} else if seen {
		metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
		d.logger.InfoContext(ctx, "notification already delivered, skipping")
		return nil
	}

	body, err := json.Marshal(models.NewNotificationPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	deliveryID := d.newID()
	ctx = logging.ContextWithDeliveryID(ctx, deliveryID)
	log := d.logger.WithContext(ctx).With(logging.URL(d.cfg.EndpointURL()))

	attempts := d.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		err := d.channel.Send(ctx, deliveryID, body)
		metrics.NotificationAttemptsTotal.Inc()
		metrics.NotificationDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
			log.Info("Notification sent",
				logging.Attempt(attempt+1),
				logging.Duration(time.Since(start).Milliseconds()),
			)
			if err := d.dedup.Mark(ctx, msg.MessageID, deliveryID); err != nil {
				log.Warn("failed to record delivery", logging.Error(err))
			}
			return nil
		}

		var rejected *models.RejectedError
		if errors.As(err, &rejected) {
			metrics.NotificationsTotal.WithLabelValues("rejected").Inc()
			log.Warn("Notification rejected by endpoint",
				logging.Status(rejected.StatusCode),
				logging.Attempt(attempt+1),
			)
			d.deadLetter(ctx, msg, deliveryID, attempt+1, err)
			return err
		}

		lastErr = err
		if ctx.Err() != nil {
			return d.interrupted(ctx, log, msg, deliveryID, attempt+1, err)
		}
		if attempt == attempts-1 {
			break
		}

		delay := d.cfg.Backoff(attempt)
		log.Warn("Notification attempt failed, retrying",
			logging.Attempt(attempt+1),
			slog.Int64("delay_ms", delay.Milliseconds()),
			logging.Error(err),
		)
		if werr := d.wait(ctx, delay); werr != nil {
			return d.interrupted(ctx, log, msg, deliveryID, attempt+1, werr)
		}
	}

	terr := &models.TransportError{Attempts: attempts, Err: lastErr}
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	log.Error("Notification failed", logging.Attempt(attempts), logging.Error(lastErr))
	d.deadLetter(ctx, msg, deliveryID, attempts, terr)
	return terr
}

func (d *Dispatcher) interrupted(ctx context.Context, log *slog.Logger, msg models.ReceivedMessage, deliveryID string, attempts int, cause error) error {
	err := fmt.Errorf("%w after %d attempts: %w", models.ErrInterrupted, attempts, cause)
	metrics.NotificationsTotal.WithLabelValues("interrupted").Inc()
	log.Warn("Notification interrupted", logging.Attempt(attempts))
	d.deadLetter(context.WithoutCancel(ctx), msg, deliveryID, attempts, err)
	return err
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg models.ReceivedMessage, deliveryID string, attempts int, cause error) {
	if d.dlq == nil {
		return
	}

	now := time.Now().UTC()
	failed := models.FailedNotification{
		Timestamp:   now,
		DeliveryID:  deliveryID,
		MessageID:   msg.MessageID,
		Endpoint:    d.cfg.EndpointURL(),
		Payload:     models.NewNotificationPayload(msg),
		Error:       cause.Error(),
		Reason:      models.FailureReason(cause),
		Attempts:    attempts,
		LastAttempt: now,
	}
	if err := d.dlq.Write(context.WithoutCancel(ctx), failed); err != nil {
		d.logger.Error("failed to dead-letter notification",
			logging.MessageID(msg.MessageID), logging.Error(err))
	}
}

// Close stops accepting notifications, interrupts pending backoff sleeps
// and waits for background deliveries until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.cancel()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight notifications: %w", ctx.Err())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
