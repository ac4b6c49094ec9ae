// Package cli implements the as2hooks command line.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/as2hooks/common/config"
	"github.com/telhawk-systems/as2hooks/common/logging"
)

var (
	cfgFile       string
	moduleOptions map[string]string
	outputFormat  string
	cfg           *config.Config
	logger        *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "as2hooks",
	Short: "Audit log and webhook notifier for AS2 message receipt",
	Long: `as2hooks records every AS2 message stored by the host in an append-only
audit log and announces it to an HTTP endpoint with bounded retries.

Run "as2hooks serve" next to the AS2 host, or use the other commands to
exercise each component by hand.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $AS2HOOKS_CONFIG_DIR/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringToStringVar(&moduleOptions, "option", nil, "host module option key=value (api_url, timeout, async, max_retries, retry_delay_ms, ...)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
}

// initConfig loads configuration, layers module options on top and sets up
// logging. Configuration errors abort the command.
func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := loaded.ApplyModuleOptions(moduleOptions); err != nil {
		return err
	}
	cfg = loaded

	logger = newLogger(cmd.ErrOrStderr(), cfg.Logging)
	logging.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) *logging.Logger {
	return logging.NewWithWriter(w, logging.ParseLevel(lc.Level), lc.Format).With(logging.Service("as2hooks"))
}

func checkOutputFormat() error {
	switch outputFormat {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}
