package auditlog

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

var entryPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2} \| [^|]+ \| [^|]+ → [^|]+ \| \d+ bytes$`)

func newTestWriter(t *testing.T, interval time.Duration) *Writer {
	t.Helper()
	dir := t.TempDir()

	w, err := New(Config{
		Directory:        filepath.Join(dir, "as2-logs"),
		Filename:         "as2-message-log.txt",
		ArchiveDirectory: filepath.Join(dir, "as2-logs", "archive"),
		RotationInterval: interval,
		ShutdownTimeout:  time.Second,
	}, logging.Discard())
	require.NoError(t, err)
	return w
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestNew_CreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Directory:        filepath.Join(dir, "logs"),
		Filename:         "audit.txt",
		ArchiveDirectory: filepath.Join(dir, "logs", "archive"),
	}

	_, err := New(cfg, logging.Discard())
	require.NoError(t, err)

	for _, d := range []string{cfg.Directory, cfg.ArchiveDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// idempotent
	_, err = New(cfg, logging.Discard())
	require.NoError(t, err)
}

func TestNew_DirectoryFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := New(Config{Directory: filepath.Join(blocker, "logs"), Filename: "audit.txt"}, logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIO))
}

func TestNew_EmptyFilename(t *testing.T) {
	_, err := New(Config{Directory: t.TempDir()}, logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestFormatEntry(t *testing.T) {
	now := time.Date(2025, 8, 8, 10, 30, 52, 0, time.Local)
	msg := models.NewReceivedMessage("123456", "ACME", "BIGBUY", 20480, "order.xml", now)

	assert.Equal(t, "2025-08-08T10:30:52 | 123456 | ACME → BIGBUY | 20480 bytes\n", FormatEntry(msg))
}

func TestRecord_AppendsOneLine(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	now := time.Date(2025, 8, 8, 10, 30, 52, 0, time.Local)

	require.NoError(t, w.Record(models.NewReceivedMessage("m-1", "ACME", "BIGBUY", 10, "a.xml", now)))
	require.NoError(t, w.Record(models.NewReceivedMessage("m-2", "ACME", "BIGBUY", 20, "b.xml", now)))

	lines := readLines(t, w.Path())
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-08-08T10:30:52 | m-1 | ACME → BIGBUY | 10 bytes", lines[0])
	assert.Equal(t, "2025-08-08T10:30:52 | m-2 | ACME → BIGBUY | 20 bytes", lines[1])
}

func TestRecord_UnknownIdentifiers(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	now := time.Date(2025, 8, 8, 10, 30, 52, 0, time.Local)

	require.NoError(t, w.Record(models.NewReceivedMessage("", "", "", 0, "", now)))

	lines := readLines(t, w.Path())
	require.Len(t, lines, 1)
	assert.Equal(t, "2025-08-08T10:30:52 | UNKNOWN | UNKNOWN → UNKNOWN | 0 bytes", lines[0])
}

func TestRecord_ConcurrentWriters(t *testing.T) {
	w := newTestWriter(t, time.Hour)

	const writers = 50
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				msg := models.NewReceivedMessage(
					gofakeit.UUID(),
					gofakeit.Username(),
					gofakeit.Username(),
					int64(gofakeit.Number(0, 1<<20)),
					"",
					time.Now(),
				)
				assert.NoError(t, w.Record(msg))
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, w.Path())
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		assert.Regexp(t, entryPattern, line)
	}
}

func TestRecord_FailsWhenDirectoryRemoved(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	require.NoError(t, os.RemoveAll(filepath.Dir(w.Path())))

	err := w.Record(models.NewReceivedMessage("m", "a", "b", 1, "f.xml", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIO))
}

func TestRotate_MovesNonEmptyLog(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.Local)
	require.NoError(t, w.Record(models.NewReceivedMessage("m-1", "ACME", "BIGBUY", 1, "a.xml", now)))

	target, err := w.Rotate(now)
	require.NoError(t, err)

	assert.Equal(t, "as2-message-log-2026-03-14.txt", filepath.Base(target))
	assert.NoFileExists(t, w.Path())
	lines := readLines(t, target)
	assert.Len(t, lines, 1)

	// the next record starts a fresh file
	require.NoError(t, w.Record(models.NewReceivedMessage("m-2", "ACME", "BIGBUY", 1, "b.xml", now)))
	assert.Len(t, readLines(t, w.Path()), 1)
}

func TestRotate_AbsentOrEmptyIsNoop(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	now := time.Now()

	target, err := w.Rotate(now)
	require.NoError(t, err)
	assert.Empty(t, target)

	require.NoError(t, os.WriteFile(w.Path(), nil, 0o644))
	target, err = w.Rotate(now)
	require.NoError(t, err)
	assert.Empty(t, target)
	assert.FileExists(t, w.Path())

	entries, err := os.ReadDir(w.cfg.ArchiveDirectory)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRotate_SameDayGetsUniqueSuffix(t *testing.T) {
	w := newTestWriter(t, time.Hour)
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.Local)

	var targets []string
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Record(models.NewReceivedMessage("m", "a", "b", int64(i), "f.xml", now)))
		target, err := w.Rotate(now)
		require.NoError(t, err)
		targets = append(targets, filepath.Base(target))
	}

	assert.Equal(t, []string{
		"as2-message-log-2026-03-14.txt",
		"as2-message-log-2026-03-14-1.txt",
		"as2-message-log-2026-03-14-2.txt",
	}, targets)
}

func TestRotationTask(t *testing.T) {
	w := newTestWriter(t, 20*time.Millisecond)
	require.NoError(t, w.Record(models.NewReceivedMessage("m", "a", "b", 1, "f.xml", time.Now())))

	require.NoError(t, w.Start(t.Context()))
	require.Error(t, w.Start(t.Context()), "second Start must fail")

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(w.cfg.ArchiveDirectory)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, w.Path())

	require.NoError(t, w.Stop())
	require.Error(t, w.Stop(), "Stop on a stopped task must fail")
}

func TestRotationTask_SurvivesFailure(t *testing.T) {
	w := newTestWriter(t, 20*time.Millisecond)
	archive := w.cfg.ArchiveDirectory

	// Replace the archive directory with a file so renames fail.
	require.NoError(t, os.RemoveAll(archive))
	require.NoError(t, os.WriteFile(archive, []byte("blocker"), 0o644))
	require.NoError(t, w.Record(models.NewReceivedMessage("m", "a", "b", 1, "f.xml", time.Now())))

	require.NoError(t, w.Start(t.Context()))
	defer func() { _ = w.Stop() }()

	time.Sleep(80 * time.Millisecond)
	assert.FileExists(t, w.Path(), "failed rotation must leave the log in place")

	require.NoError(t, os.Remove(archive))
	require.NoError(t, os.MkdirAll(archive, 0o755))

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(archive)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStop_ForcedAfterGracePeriod(t *testing.T) {
	w := newTestWriter(t, 10*time.Millisecond)
	w.cfg.ShutdownTimeout = 20 * time.Millisecond
	require.NoError(t, w.Record(models.NewReceivedMessage("m", "a", "b", 1, "f.xml", time.Now())))

	// Hold the file lock so the next scheduled rotation blocks.
	w.mu.Lock()
	require.NoError(t, w.Start(t.Context()))
	time.Sleep(50 * time.Millisecond)

	err := w.Stop()
	w.mu.Unlock()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not stop")
}
