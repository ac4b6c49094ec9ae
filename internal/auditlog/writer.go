// Package auditlog appends one line per received AS2 message to a local log
// file and periodically rotates that file into a date-stamped archive.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/internal/metrics"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

const archiveDateLayout = "2006-01-02"

// Config configures the audit log writer.
type Config struct {
	Directory        string
	Filename         string
	ArchiveDirectory string
	RotationInterval time.Duration
	ShutdownTimeout  time.Duration
}

// Writer appends audit entries and owns the rotation task.
type Writer struct {
	cfg     Config
	logPath string
	logger  *logging.Logger

	// mu serializes appends and rotation on the active log file.
	mu sync.Mutex

	lifecycle sync.Mutex
	running   bool
	stop      chan struct{}
	stopped   chan struct{}
	cancel    context.CancelFunc
	now       func() time.Time
}

// New creates the log and archive directories and returns a Writer.
// The rotation task is not started until Start is called.
func New(cfg Config, logger *logging.Logger) (*Writer, error) {
	if cfg.Filename == "" {
		return nil, models.ConfigError("audit_log.filename", errors.New("must not be empty"))
	}
	if cfg.Directory == "" {
		cfg.Directory = "."
	}
	if cfg.ArchiveDirectory == "" {
		cfg.ArchiveDirectory = filepath.Join(cfg.Directory, "archive")
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = 24 * time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	for _, dir := range []string{cfg.Directory, cfg.ArchiveDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory %s: %w: %w", dir, models.ErrIO, err)
		}
	}

	return &Writer{
		cfg:     cfg,
		logPath: filepath.Join(cfg.Directory, cfg.Filename),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Path returns the active log file path.
func (w *Writer) Path() string {
	return w.logPath
}

// FormatEntry renders one newline-terminated audit line.
func FormatEntry(msg models.ReceivedMessage) string {
	return fmt.Sprintf("%s | %s | %s → %s | %d bytes\n",
		msg.Timestamp(), msg.MessageID, msg.SenderID, msg.ReceiverID, msg.PayloadSize)
}

// Record appends one entry for msg. The file is opened, written with a single
// call and closed for every entry.
func (w *Writer) Record(msg models.ReceivedMessage) error {
	entry := FormatEntry(msg)

	w.mu.Lock()
	err := appendLine(w.logPath, entry)
	w.mu.Unlock()

	if err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("append audit log %s: %w: %w", w.logPath, models.ErrIO, err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("ok").Inc()
	w.logger.Info("Logged AS2 message",
		logging.MessageID(msg.MessageID),
		logging.Sender(msg.SenderID),
		logging.Receiver(msg.ReceiverID),
	)
	return nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Rotate moves a non-empty log file into the archive directory under a name
// suffixed with the date of now. An absent or empty log is left alone and ""
// is returned. A second rotation on the same date gets a numeric suffix.
func (w *Writer) Rotate(now time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat audit log: %w: %w", models.ErrIO, err)
	}
	if info.Size() == 0 {
		return "", nil
	}

	target, err := w.archivePath(now)
	if err != nil {
		return "", err
	}
	if err := os.Rename(w.logPath, target); err != nil {
		return "", fmt.Errorf("archive audit log: %w: %w", models.ErrIO, err)
	}
	return target, nil
}

// archivePath picks <base>-<date><ext>, then <base>-<date>-1<ext>, ... until
// an unused name is found. Called with mu held.
func (w *Writer) archivePath(now time.Time) (string, error) {
	ext := filepath.Ext(w.cfg.Filename)
	base := strings.TrimSuffix(w.cfg.Filename, ext)
	if ext == "" {
		ext = ".txt"
	}
	stem := fmt.Sprintf("%s-%s", base, now.Format(archiveDateLayout))

	candidate := filepath.Join(w.cfg.ArchiveDirectory, stem+ext)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat archive %s: %w: %w", candidate, models.ErrIO, err)
		}
		candidate = filepath.Join(w.cfg.ArchiveDirectory, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}

// Start launches the rotation task. It fires every RotationInterval counted
// from the call, not aligned to midnight.
func (w *Writer) Start(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.running {
		return fmt.Errorf("rotation already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.stop = make(chan struct{})
	w.stopped = make(chan struct{})
	w.cancel = cancel

	w.logger.Info("audit log rotation started",
		logging.Path(w.logPath),
		slog.Duration("interval", w.cfg.RotationInterval),
	)

	go w.run(runCtx, w.stop, w.stopped)
	return nil
}

// Stop asks the rotation task to finish and waits up to ShutdownTimeout.
// After the grace period the task's context is cancelled and an error is
// returned; Stop does not wait any further.
func (w *Writer) Stop() error {
	w.lifecycle.Lock()
	if !w.running {
		w.lifecycle.Unlock()
		return fmt.Errorf("rotation not running")
	}
	w.running = false
	close(w.stop)
	stopped, cancel := w.stopped, w.cancel
	w.lifecycle.Unlock()

	timer := time.NewTimer(w.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		cancel()
		w.logger.Info("audit log rotation stopped")
		return nil
	case <-timer.C:
		cancel()
		w.logger.Warn("audit log rotation did not stop in time, cancelled",
			slog.Duration("timeout", w.cfg.ShutdownTimeout),
		)
		return fmt.Errorf("rotation task did not stop within %s", w.cfg.ShutdownTimeout)
	}
}

func (w *Writer) run(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(w.cfg.RotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.rotateScheduled()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// rotateScheduled runs one rotation and logs the outcome; failures never end the loop.
func (w *Writer) rotateScheduled() {
	target, err := w.Rotate(w.now())
	if err != nil {
		metrics.AuditRotationsTotal.WithLabelValues("error").Inc()
		w.logger.Error("audit log rotation failed", logging.Path(w.logPath), logging.Error(err))
		return
	}
	if target == "" {
		metrics.AuditRotationsTotal.WithLabelValues("skipped").Inc()
		w.logger.Debug("audit log empty, rotation skipped", logging.Path(w.logPath))
		return
	}
	metrics.AuditRotationsTotal.WithLabelValues("ok").Inc()
	w.logger.Info("audit log rotated", logging.Path(target))
}
