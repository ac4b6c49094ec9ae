package cli

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/as2hooks/common/config"
	"github.com/telhawk-systems/as2hooks/common/messaging"
	"github.com/telhawk-systems/as2hooks/internal/auditlog"
	"github.com/telhawk-systems/as2hooks/internal/hook"
	"github.com/telhawk-systems/as2hooks/internal/hostbridge"
	"github.com/telhawk-systems/as2hooks/internal/models"
	"github.com/telhawk-systems/as2hooks/internal/notification"
	"github.com/telhawk-systems/as2hooks/internal/output"
)

// messageFlags are the host metadata fields of one received message.
type messageFlags struct {
	messageID string
	sender    string
	receiver  string
	size      int64
	filename  string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.messageID, "id", "", "AS2 message ID (default UNKNOWN)")
	cmd.Flags().StringVar(&f.sender, "sender", "", "partnership sender ID")
	cmd.Flags().StringVar(&f.receiver, "receiver", "", "partnership receiver ID")
	cmd.Flags().Int64Var(&f.size, "size", 0, "payload size in bytes")
	cmd.Flags().StringVar(&f.filename, "filename", "", "stored payload filename (default order_<millis>.xml)")
}

func (f *messageFlags) message(now time.Time) models.ReceivedMessage {
	return models.NewReceivedMessage(f.messageID, f.sender, f.receiver, f.size, f.filename, now)
}

var (
	recordFlags  messageFlags
	notifyFlags  messageFlags
	receiveFlags messageFlags
	publishFlags messageFlags
	notifyDryRun bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append one entry to the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		audit, err := newAuditLog(cfg, logger)
		if err != nil {
			return err
		}
		msg := recordFlags.message(time.Now())
		if err := audit.Record(msg); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "%s: %s", audit.Path(), strings.TrimSuffix(auditlog.FormatEntry(msg), "\n"))
		return nil
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send one notification synchronously and report the outcome",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		hc := cfg.Hook
		hc.Async = false
		opts := s.dispatcherOptions()
		if notifyDryRun {
			opts = append(opts, notification.WithChannel(notification.NewLogChannel(log.New(cmd.OutOrStdout(), "", 0).Printf)))
		}

		dispatcher, err := notification.New(hc, logger, opts...)
		if err != nil {
			return err
		}
		defer dispatcher.Close(context.Background())

		msg := notifyFlags.message(time.Now())
		if err := dispatcher.Notify(cmd.Context(), msg); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "Notified %s for %s", hc.EndpointURL(), msg.PayloadFilename)
		return nil
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Run the full receipt hook for one message, as the host would",
	Long: `Records the message in the audit log and dispatches its notification
using the configured mode. In async mode the command waits for the
background delivery before exiting. Failures are logged, never returned.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		audit, err := newAuditLog(cfg, logger)
		if err != nil {
			return err
		}
		dispatcher, err := notification.New(cfg.Hook, logger, s.dispatcherOptions()...)
		if err != nil {
			return err
		}

		coordinator := hook.NewCoordinator(audit, dispatcher, logger)
		coordinator.OnMessageReceived(cmd.Context(), receiveFlags.message(time.Now()))

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout(cfg.Hook))
		defer cancel()
		return dispatcher.Close(ctx)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an as2.messages.received event to NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := *cfg
		c.NATS.Enabled = true
		c.DLQ.Enabled = false
		c.Redis.Enabled = false

		s, err := buildStack(cmd.Context(), &c, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		msg := publishFlags.message(time.Now())
		if err := hostbridge.Publish(cmd.Context(), s.nats, msg); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "Published %s on %s", msg.MessageID, messaging.SubjectMessagesReceived)
		return nil
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Archive the current audit log now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		audit, err := newAuditLog(cfg, logger)
		if err != nil {
			return err
		}
		target, err := audit.Rotate(time.Now())
		if err != nil {
			return err
		}
		if target == "" {
			output.Info(cmd.OutOrStdout(), "Audit log empty, nothing to rotate")
			return nil
		}
		output.Success(cmd.OutOrStdout(), "Archived to %s", target)
		return nil
	},
}

// drainTimeout is the worst-case duration of one delivery, saturating at
// the largest time.Duration.
func drainTimeout(h config.HookConfig) time.Duration {
	total := time.Second
	add := func(d time.Duration) {
		if d > math.MaxInt64-total {
			total = math.MaxInt64
			return
		}
		total += d
	}
	for k := 0; k <= h.MaxRetries; k++ {
		add(h.Timeout())
		if k < h.MaxRetries {
			add(h.Backoff(k))
		}
	}
	return total
}

func init() {
	recordFlags.register(recordCmd)
	notifyFlags.register(notifyCmd)
	receiveFlags.register(receiveCmd)
	publishFlags.register(publishCmd)
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "print the request instead of sending it")

	rootCmd.AddCommand(recordCmd, notifyCmd, receiveCmd, publishCmd, rotateCmd)
}
