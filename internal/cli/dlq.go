package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/as2hooks/internal/output"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect failed notifications",
}

var dlqLimit int

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}
		s, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		store, err := requireDLQ(s)
		if err != nil {
			return err
		}
		entries, err := store.List(cmd.Context(), dlqLimit)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if ok, err := output.Structured(w, outputFormat, entries); ok {
			return err
		}
		if len(entries) == 0 {
			output.Info(w, "No failed notifications")
			return nil
		}

		table := output.NewTable("TIMESTAMP", "MESSAGE ID", "FILENAME", "REASON", "ATTEMPTS", "ERROR")
		for _, e := range entries {
			table.AddRow(
				e.Timestamp.Local().Format(time.DateTime),
				e.MessageID,
				e.Payload.Filename,
				e.Reason,
				strconv.Itoa(e.Attempts),
				e.Error,
			)
		}
		table.Render(w)
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered notification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		store, err := requireDLQ(s)
		if err != nil {
			return err
		}
		n, err := store.Purge(cmd.Context())
		if err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "Purged %d failed notifications", n)
		return nil
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead-letter queue statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}
		s, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		store, err := requireDLQ(s)
		if err != nil {
			return err
		}
		stats := store.Stats(cmd.Context())

		w := cmd.OutOrStdout()
		if ok, err := output.Structured(w, outputFormat, stats); ok {
			return err
		}
		output.Info(w, "Backend:  %s", stats.Backend)
		output.Info(w, "Location: %s", stats.Location)
		output.Info(w, "Pending:  %d", stats.Pending)
		output.Info(w, "Written:  %d (this process)", stats.Written)
		if stats.Error != "" {
			output.Warn(w, "%s", stats.Error)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqLimit, "limit", 0, "maximum entries to list (0 for all, jetstream defaults to 100)")
	dlqCmd.AddCommand(dlqListCmd, dlqPurgeCmd, dlqStatsCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(dlqCmd, configCmd)
}
