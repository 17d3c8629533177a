package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/logstream/internal/config"
	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.BatchSize = 50
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config) (*Engine, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	e, err := New(context.Background(), cfg, rec)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, rec
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestCurrentFile(t *testing.T) {
	e, _ := newEngine(t, testConfig())

	_, ok := e.GetCurrentFile()
	assert.False(t, ok)

	assert.ErrorIs(t, e.SetCurrentFile(""), domain.ErrNoPath)
	require.NoError(t, e.SetCurrentFile("/var/log/app.log"))

	path, ok := e.GetCurrentFile()
	assert.True(t, ok)
	assert.Equal(t, "/var/log/app.log", path)
	assert.Zero(t, e.State().CurrentOffset)
}

func TestLoadThenMonitor(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	path := writeLog(t, "2024-01-01 ERROR disk full\n2024-01-01 info ok\n")

	require.NoError(t, e.StartFileLoading(path, false))
	require.Eventually(t, func() bool { return rec.Has(domain.EventLoadingSuccess) }, waitFor, tick)
	assert.False(t, e.IsLoading())
	assert.Len(t, rec.Entries(), 2)

	require.NoError(t, e.StartFileMonitoring(path))
	require.NoError(t, e.StartFileMonitoring(path), "second start is a no-op")
	assert.True(t, e.State().IsRunning)

	appendLog(t, path, "2024-01-01 WARN tail\n")
	require.Eventually(t, func() bool { return len(rec.Entries()) == 3 }, waitFor, tick)
	assert.Equal(t, "2024-01-01 WARN tail", rec.Messages()[2])
	assert.Equal(t, domain.SeverityWarning, rec.Entries()[2].Severity)

	e.StopFileMonitoring()
	assert.False(t, e.State().IsRunning)
	current, _ := e.GetCurrentFile()
	assert.Equal(t, path, current)
}

func TestMonitorThenResumeLoad(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	path := writeLog(t, "history\n")

	require.NoError(t, e.StartFileMonitoring(path))
	appendLog(t, path, "live\n")
	require.Eventually(t, func() bool { return len(rec.Entries()) == 1 }, waitFor, tick)
	e.StopFileMonitoring()

	require.NoError(t, e.StartFileLoading(path, false))
	require.Eventually(t, func() bool { return rec.Has(domain.EventLoadingSuccess) }, waitFor, tick)
	assert.True(t, rec.Has(domain.EventAlreadyLoaded), "the tailer already consumed everything")

	rec.Reset()
	require.NoError(t, e.StartFileLoading(path, true))
	require.Eventually(t, func() bool { return rec.Has(domain.EventLoadingSuccess) }, waitFor, tick)
	assert.Equal(t, []string{"history", "live"}, rec.Messages())
}

func TestSecondLoadRejected(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	content := strings.Repeat("2024-01-01 INFO line\n", 20000)
	path := writeLog(t, content)

	require.NoError(t, e.StartFileLoading(path, false))
	err := e.StartFileLoading(path, false)
	if err != nil {
		assert.ErrorIs(t, err, domain.ErrLoadInProgress)
		assert.Equal(t, domain.KindConcurrentStateConflict, domain.ErrorKind(err))
	}

	require.Eventually(t, func() bool { return !e.IsLoading() }, waitFor, tick)
	assert.LessOrEqual(t, e.State().CurrentOffset, uint64(len(content)))
	assert.True(t, rec.Has(domain.EventLoadingSuccess))
}

func TestCancelLoading(t *testing.T) {
	e, _ := newEngine(t, testConfig())
	assert.False(t, e.CancelFileLoading(), "nothing to cancel")
	assert.False(t, e.IsLoading())
}

func TestEmptyFileLoad(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	path := writeLog(t, "")

	require.NoError(t, e.StartFileLoading(path, false))
	require.Eventually(t, func() bool { return rec.Has(domain.EventLoadingError) }, waitFor, tick)
	assert.False(t, e.IsLoading())

	var ev events.Event
	for _, got := range rec.Events() {
		if got.Name == domain.EventLoadingError {
			ev = got
		}
	}
	assert.Equal(t, domain.MessagePayload{Message: domain.ErrEmptyFile.Error()}, ev.Payload)
	assert.Equal(t, path, ev.File)
}

func TestMonitorMissingFileReportsError(t *testing.T) {
	e, rec := newEngine(t, testConfig())

	require.NoError(t, e.StartFileMonitoring(filepath.Join(t.TempDir(), "missing.log")))
	require.Eventually(t, func() bool { return rec.Has(domain.EventMonitoringErr) }, waitFor, tick)
	require.Eventually(t, func() bool { return !e.State().IsRunning }, waitFor, tick)
}

func TestWatchEventsAndArchive(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Second
	cfg.WatchEvents = true
	cfg.ArchivePath = filepath.Join(t.TempDir(), "archive.db")

	e, rec := newEngine(t, cfg)
	require.NotNil(t, e.Archive())
	path := writeLog(t, "")

	require.NoError(t, e.StartFileMonitoring(path))
	time.Sleep(50 * time.Millisecond)
	appendLog(t, path, "one\ntwo\n")

	require.Eventually(t, func() bool { return len(rec.Entries()) == 2 }, waitFor, tick)

	n, err := e.Archive().Count(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCloseStopsWorkers(t *testing.T) {
	rec := events.NewRecorder()
	e, err := New(context.Background(), testConfig(), rec)
	require.NoError(t, err)

	path := writeLog(t, "x\n")
	require.NoError(t, e.StartFileMonitoring(path))

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}
	assert.False(t, e.State().IsRunning)
}

func TestStartAfterCloseRejected(t *testing.T) {
	rec := events.NewRecorder()
	e, err := New(context.Background(), testConfig(), rec)
	require.NoError(t, err)
	path := writeLog(t, "x\n")

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "second close is a no-op")

	assert.ErrorIs(t, e.StartFileLoading(path, false), ErrClosed)
	assert.ErrorIs(t, e.StartFileMonitoring(path), ErrClosed)
	assert.False(t, e.IsLoading())
	assert.False(t, e.State().IsRunning)
}

func TestStartRacingClose(t *testing.T) {
	rec := events.NewRecorder()
	e, err := New(context.Background(), testConfig(), rec)
	require.NoError(t, err)
	path := writeLog(t, strings.Repeat("2024-01-01 INFO line\n", 100))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.StartFileMonitoring(path); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
			if err := e.StartFileLoading(path, true); err != nil && !errors.Is(err, domain.ErrLoadInProgress) {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
	}
	require.NoError(t, e.Close())
	wg.Wait()

	assert.ErrorIs(t, e.StartFileLoading(path, false), ErrClosed)
}
