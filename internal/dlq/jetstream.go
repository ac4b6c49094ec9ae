package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/common/messaging"
	"github.com/telhawk-systems/as2hooks/common/messaging/nats"
	"github.com/telhawk-systems/as2hooks/internal/metrics"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// JetStreamQueue publishes failed notifications to a NATS JetStream stream
// so several hook instances share one dead-letter queue.
type JetStreamQueue struct {
	js      *nats.JetStreamClient
	stream  jetstream.Stream
	logger  *logging.Logger
	written atomic.Uint64
}

// NewJetStreamQueue creates or updates the DLQ stream and returns a queue on it.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient, logger *logging.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stream, err := js.CreateOrUpdateStream(ctx, nats.DLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.Info("DLQ: JetStream stream ready", "stream", nats.DLQStream.Name)

	return &JetStreamQueue{
		js:     js,
		stream: stream,
		logger: logger,
	}, nil
}

// Write publishes failed on as2hooks.dlq.<reason> and waits for the ack.
func (q *JetStreamQueue) Write(ctx context.Context, failed models.FailedNotification) error {
	if q == nil {
		return nil
	}
	if failed.Timestamp.IsZero() {
		failed.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	msg := messaging.NewMessage(messaging.DLQSubject(failed.Reason), data,
		messaging.WithHeader(messaging.HeaderMessageID, failed.MessageID))
	if failed.DeliveryID != "" {
		// JetStream drops duplicates with the same Nats-Msg-Id inside the dedup window.
		msg.Metadata["Nats-Msg-Id"] = failed.DeliveryID
	}

	if _, err := q.js.PublishSync(ctx, msg); err != nil {
		q.logger.ErrorContext(ctx, "failed to publish DLQ entry", logging.Subject(msg.Subject), logging.Error(err))
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	metrics.DLQWritesTotal.WithLabelValues(failed.Reason).Inc()
	q.logger.InfoContext(ctx, "DLQ: published failed notification",
		logging.Subject(msg.Subject),
		logging.MessageID(failed.MessageID),
	)
	return nil
}

// List reads up to limit entries through an ephemeral consumer.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]models.FailedNotification, error) {
	if q == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.SubjectDLQPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var out []models.FailedNotification
	for msg := range batch.Messages() {
		var failed models.FailedNotification
		if err := json.Unmarshal(msg.Data(), &failed); err != nil {
			q.logger.WarnContext(ctx, "failed to parse DLQ message", logging.Error(err))
			continue
		}
		out = append(out, failed)
	}
	if err := batch.Error(); err != nil {
		q.logger.WarnContext(ctx, "DLQ fetch completed with error", logging.Error(err))
	}
	return out, nil
}

// Purge removes every message from the stream.
func (q *JetStreamQueue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("dlq stream info: %w", err)
	}
	if err := q.stream.Purge(ctx); err != nil {
		return 0, fmt.Errorf("purge dlq stream: %w", err)
	}

	q.logger.InfoContext(ctx, "DLQ: purged stream", "count", info.State.Msgs)
	return int(info.State.Msgs), nil
}

// Stats reports stream state.
func (q *JetStreamQueue) Stats(ctx context.Context) Stats {
	if q == nil {
		return Stats{Backend: "jetstream"}
	}

	stats := Stats{
		Enabled:  true,
		Backend:  "jetstream",
		Written:  q.written.Load(),
		Location: nats.DLQStream.Name,
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		stats.Error = err.Error()
		return stats
	}
	stats.Pending = info.State.Msgs
	return stats
}
