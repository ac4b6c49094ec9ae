package cli

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/as2hooks/common/config"
	"github.com/telhawk-systems/as2hooks/common/logging"
	natsclient "github.com/telhawk-systems/as2hooks/common/messaging/nats"
	"github.com/telhawk-systems/as2hooks/internal/auditlog"
	"github.com/telhawk-systems/as2hooks/internal/dedup"
	"github.com/telhawk-systems/as2hooks/internal/dlq"
	"github.com/telhawk-systems/as2hooks/internal/notification"
)

// stack holds the components built from configuration and releases them in
// reverse order.
type stack struct {
	nats    *natsclient.JetStreamClient
	dlq     dlq.Store
	dedup   dedup.Store
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func newAuditLog(c *config.Config, l *logging.Logger) (*auditlog.Writer, error) {
	return auditlog.New(auditlog.Config{
		Directory:        c.AuditLog.Directory,
		Filename:         c.AuditLog.Filename,
		ArchiveDirectory: c.AuditLog.ArchiveDirectory,
		RotationInterval: c.AuditLog.RotationInterval,
		ShutdownTimeout:  c.AuditLog.ShutdownTimeout,
	}, l)
}

// buildStack connects the optional backends: NATS, the dead-letter queue
// and the dedup store. Redis failures degrade to no dedup; DLQ and NATS
// failures are fatal once enabled.
func buildStack(ctx context.Context, c *config.Config, l *logging.Logger) (*stack, error) {
	s := &stack{dedup: dedup.NoOpStore{}}

	needNATS := c.NATS.Enabled || (c.DLQ.Enabled && c.DLQ.Backend == "jetstream")
	if needNATS {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = c.NATS.URL
		natsCfg.MaxReconnects = c.NATS.MaxReconnects
		if c.NATS.ReconnectWait > 0 {
			natsCfg.ReconnectWait = c.NATS.ReconnectWait
		}

		js, err := natsclient.NewJetStreamClient(natsCfg, l)
		if err != nil {
			return nil, err
		}
		s.nats = js
		s.closers = append(s.closers, func() { _ = js.Drain() })
		l.Info("Connected to NATS", logging.URL(c.NATS.URL))
	}

	if c.DLQ.Enabled {
		switch c.DLQ.Backend {
		case "jetstream":
			q, err := dlq.NewJetStreamQueue(ctx, s.nats, l)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.dlq = q
			l.Info("Dead Letter Queue enabled", "backend", "jetstream", logging.URL(c.NATS.URL))
		default:
			q, err := dlq.NewQueue(c.DLQ.BasePath, l)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.dlq = q
			l.Info("Dead Letter Queue enabled", "backend", "file", logging.Path(c.DLQ.BasePath))
		}
	} else {
		l.Info("Dead Letter Queue disabled")
	}

	if c.Redis.Enabled {
		store, err := dedup.NewRedisStore(c.Redis.URL, c.Redis.DedupTTL)
		if err != nil {
			l.Warn("Failed to connect to Redis, continuing without delivery dedup", logging.Error(err))
		} else {
			s.dedup = store
			s.closers = append(s.closers, func() { _ = store.Close() })
			l.Info("Delivery dedup enabled", "ttl", c.Redis.DedupTTL.String())
		}
	}

	return s, nil
}

// dispatcherOptions returns the options that attach the stack's backends.
func (s *stack) dispatcherOptions() []notification.Option {
	opts := []notification.Option{notification.WithDedup(s.dedup)}
	if s.dlq != nil {
		opts = append(opts, notification.WithDeadLetter(s.dlq))
	}
	return opts
}

func requireDLQ(s *stack) (dlq.Store, error) {
	if s.dlq == nil {
		return nil, fmt.Errorf("%w: enable it with dlq.enabled or AS2HOOKS_DLQ_ENABLED=true", dlq.ErrDisabled)
	}
	return s.dlq, nil
}
