// Package dlq records notifications that could not be delivered so an
// operator can inspect and replay them.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/internal/metrics"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// ErrDisabled is returned by read operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// ErrNotFound is returned when no entry matches a delivery ID.
var ErrNotFound = errors.New("dlq entry not found")

// Writer accepts terminal notification failures.
type Writer interface {
	Write(ctx context.Context, failed models.FailedNotification) error
}

// Store is a Writer that can also be inspected and emptied.
type Store interface {
	Writer
	List(ctx context.Context, limit int) ([]models.FailedNotification, error)
	Purge(ctx context.Context) (int, error)
	Stats(ctx context.Context) Stats
}

// Stats describes the state of a dead-letter backend.
type Stats struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Backend  string `json:"backend" yaml:"backend"`
	Written  uint64 `json:"written" yaml:"written"`
	Pending  uint64 `json:"pending" yaml:"pending"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Queue writes failed notifications as JSON files in a directory.
type Queue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  uint64
}

// NewQueue creates a file-backed DLQ rooted at basePath.
func NewQueue(basePath string, logger *logging.Logger) (*Queue, error) {
	if basePath == "" {
		basePath = filepath.Join("as2-logs", "dlq")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w: %w", models.ErrIO, err)
	}

	return &Queue{
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Write records a failed notification in its own file.
func (q *Queue) Write(ctx context.Context, failed models.FailedNotification) error {
	if q == nil {
		return nil
	}

	if failed.Timestamp.IsZero() {
		failed.Timestamp = time.Now().UTC()
	}

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	name := entryName(failed, q.written)
	path := filepath.Join(q.basePath, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		q.logger.ErrorContext(ctx, "failed to write DLQ entry", logging.Path(path), logging.Error(err))
		return fmt.Errorf("write dlq entry: %w: %w", models.ErrIO, err)
	}

	q.written++
	metrics.DLQWritesTotal.WithLabelValues(failed.Reason).Inc()
	q.logger.InfoContext(ctx, "DLQ: wrote failed notification",
		logging.Path(name),
		logging.MessageID(failed.MessageID),
		logging.Reason(failed.Reason),
	)
	return nil
}

// entryName sorts lexically by time: failed_<unixnano>_<seq>_<delivery>.json
func entryName(failed models.FailedNotification, seq uint64) string {
	id := failed.DeliveryID
	if id == "" {
		id = "none"
	}
	return fmt.Sprintf("failed_%019d_%06d_%s.json", failed.Timestamp.UnixNano(), seq, id)
}

func (q *Queue) entries() ([]string, error) {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w: %w", models.ErrIO, err)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), "failed_") || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		names = append(names, f.Name())
	}
	return names, nil
}

// List returns up to limit entries, oldest first. limit <= 0 means all.
func (q *Queue) List(ctx context.Context, limit int) ([]models.FailedNotification, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entries()
	if err != nil {
		return nil, err
	}

	var out []models.FailedNotification
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.WarnContext(ctx, "failed to read DLQ file", logging.Path(name), logging.Error(err))
			continue
		}

		var failed models.FailedNotification
		if err := json.Unmarshal(data, &failed); err != nil {
			q.logger.WarnContext(ctx, "failed to parse DLQ file", logging.Path(name), logging.Error(err))
			continue
		}
		out = append(out, failed)
	}
	return out, nil
}

// Delete removes the entries recorded for deliveryID.
func (q *Queue) Delete(ctx context.Context, deliveryID string) error {
	if q == nil {
		return ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(q.basePath, "failed_*_"+deliveryID+".json"))
	if err != nil {
		return fmt.Errorf("search dlq files: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, deliveryID)
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("delete dlq file: %w: %w", models.ErrIO, err)
		}
		q.logger.InfoContext(ctx, "DLQ: deleted entry", logging.Path(filepath.Base(match)))
	}
	return nil
}

// Purge removes every entry and returns how many were deleted.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.WarnContext(ctx, "failed to delete DLQ file", logging.Path(name), logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.InfoContext(ctx, "DLQ: purged entries", "count", deleted)
	return deleted, nil
}

// Stats reports how many entries this process wrote and how many are pending.
func (q *Queue) Stats(ctx context.Context) Stats {
	if q == nil {
		return Stats{Backend: "file"}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Enabled:  true,
		Backend:  "file",
		Written:  q.written,
		Location: q.basePath,
	}

	names, err := q.entries()
	if err != nil {
		stats.Error = err.Error()
		return stats
	}
	stats.Pending = uint64(len(names))
	return stats
}
