package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/as2hooks/common/config"
	"github.com/telhawk-systems/as2hooks/common/httputil"
	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/common/messaging"
	"github.com/telhawk-systems/as2hooks/common/middleware"
	"github.com/telhawk-systems/as2hooks/internal/hook"
	"github.com/telhawk-systems/as2hooks/internal/hostbridge"
	"github.com/telhawk-systems/as2hooks/internal/notification"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the receipt hook service",
	Long: `Starts audit log rotation and the notification dispatcher, consumes
as2.messages.received events from NATS when enabled and exposes /metrics
and /healthz when metrics are enabled. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting as2hooks service",
		slog.String("log_level", cfg.Logging.Level),
		logging.Path(cfg.AuditLog.LogPath()),
		logging.URL(cfg.Hook.EndpointURL()),
		slog.Bool("async", cfg.Hook.Async),
	)
	if cfgFile != "" {
		logger.Info("Loaded configuration", slog.String("config_path", cfgFile))
	}

	s, err := buildStack(ctx, cfg, logger)
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
	if err := coordinator.Start(ctx); err != nil {
		return err
	}

	var bridge *hostbridge.Bridge
	if cfg.NATS.Enabled {
		bridge = hostbridge.New(s.nats, coordinator, logger)
		if err := bridge.Start(); err != nil {
			_ = coordinator.Shutdown(context.Background())
			return err
		}
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		var client messaging.Client
		if s.nats != nil {
			client = s.nats
		}
		srv = newOpsServer(cfg.Metrics, client, logger)
		go func() {
			logger.Info("Metrics listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", logging.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AuditLog.ShutdownTimeout+cfg.Hook.Timeout())
	defer cancel()

	if bridge != nil {
		if err := bridge.Stop(); err != nil {
			logger.Warn("Failed to unsubscribe host bridge", logging.Error(err))
		}
	}
	shutdownErr := coordinator.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Warn("Shutdown incomplete", logging.Error(shutdownErr))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server forced to shutdown", logging.Error(err))
		}
	}

	logger.Info("Service stopped")
	return shutdownErr
}

// newOpsServer serves Prometheus metrics and a health probe.
func newOpsServer(mc config.MetricsConfig, client messaging.Client, l *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", httputil.MethodGuard(healthHandler(client), http.MethodGet, http.MethodHead))

	return &http.Server{
		Addr:              mc.Addr,
		Handler:           middleware.RequestID(middleware.AccessLog(l, mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(client messaging.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		code := http.StatusOK

		if client != nil {
			status := messaging.CheckClientHealth(client)
			body["nats"] = status
			if status.Error != "" {
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		httputil.WriteJSON(w, code, body)
	}
}
