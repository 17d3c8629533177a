// Package engine is the process root: it owns the shared state and exposes the
// operations the host collaborator calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/logstream/internal/archive"
	"github.com/SteelMorgan/logstream/internal/charset"
	"github.com/SteelMorgan/logstream/internal/classifier"
	"github.com/SteelMorgan/logstream/internal/config"
	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
	"github.com/SteelMorgan/logstream/internal/ingest"
	"github.com/SteelMorgan/logstream/internal/loader"
	"github.com/SteelMorgan/logstream/internal/monitor"
	"github.com/SteelMorgan/logstream/internal/retry"
	"github.com/SteelMorgan/logstream/internal/tailer"
)

// ErrClosed is returned by start operations once Close was called
var ErrClosed = errors.New("engine is closed")

// Engine wires the tailer and the loader to one MonitorState and LoadingState
type Engine struct {
	cfg     *config.Config
	state   *monitor.State
	loading *monitor.LoadingState
	tailer  *tailer.Tailer
	loader  *loader.Loader
	archive *archive.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool
}

// New builds an engine emitting to sink. When cfg.ArchivePath is set the
// archive receives every event as well.
func New(ctx context.Context, cfg *config.Config, sink events.Sink) (*Engine, error) {
	if sink == nil {
		sink = events.Discard
	}

	norm, err := charset.NewNormalizer(cfg.LegacyEncoding)
	if err != nil {
		return nil, err
	}
	cls := classifier.NewDefault()

	var store *archive.Store
	if cfg.ArchivePath != "" {
		store, err = archive.Open(ctx, cfg.ArchivePath, retry.DefaultConfig())
		if err != nil {
			return nil, err
		}
		sink = events.Multi(sink, store)
	}

	pipeline := ingest.NewPipeline(norm, cls, nil)
	state := monitor.NewState()
	loading := monitor.NewLoadingState()

	runCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		state:   state,
		loading: loading,
		archive: store,
		ctx:     runCtx,
		cancel:  cancel,
		tailer: tailer.New(tailer.Config{
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
			HashPrefix:   cfg.HashPrefixBytes,
		}, state, pipeline, sink),
		loader: loader.New(loader.Config{
			BatchSize:  cfg.BatchSize,
			HashPrefix: cfg.HashPrefixBytes,
		}, state, loading, pipeline, sink),
	}

	log.Info().
		Dur("poll_interval", cfg.PollInterval).
		Int("batch_size", cfg.BatchSize).
		Str("legacy_encoding", norm.LegacyName()).
		Bool("watch_events", cfg.WatchEvents).
		Bool("archive", store != nil).
		Msg("Engine initialized")

	return e, nil
}

// SetCurrentFile makes path the tracked file with a fresh position
func (e *Engine) SetCurrentFile(path string) error {
	if path == "" {
		return domain.ErrNoPath
	}
	e.state.SetCurrentFile(path)
	log.Info().Str("file", path).Msg("Current file set")
	return nil
}

// StartFileMonitoring starts tailing path in the background.
// It is a no-op when path is already being monitored.
func (e *Engine) StartFileMonitoring(path string) error {
	if path == "" {
		return domain.ErrNoPath
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	var snap *monitor.Snapshot
	if s, err := monitor.TakeSnapshot(path, e.cfg.HashPrefixBytes); err == nil {
		snap = &s
	}

	sess, ok := e.state.StartMonitoring(path, snap)
	if !ok {
		log.Debug().Str("file", path).Msg("Already monitoring this file")
		return nil
	}

	var notifier *tailer.Notifier
	if e.cfg.WatchEvents {
		n, err := tailer.Watch(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("File watch unavailable, polling only")
		} else {
			notifier = n
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		var wake <-chan struct{}
		if notifier != nil {
			defer notifier.Close()
			wake = notifier.C()
		}
		e.tailer.Run(e.ctx, sess, wake)
	}()
	return nil
}

// StopFileMonitoring ends the tailing session. File and offset are kept.
func (e *Engine) StopFileMonitoring() {
	e.state.StopMonitoring()
	log.Info().Msg("Monitoring stop requested")
}

// StartFileLoading starts a bulk load. It fails with domain.ErrLoadInProgress
// while another load is in flight.
func (e *Engine) StartFileLoading(path string, reloadAll bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	done, err := e.loader.Start(e.ctx, path, reloadAll)
	if err != nil {
		return fmt.Errorf("start loading %s: %w", path, err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := <-done; err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Bulk load failed")
		}
	}()
	return nil
}

// CancelFileLoading signals the in-flight load and reports whether there was one
func (e *Engine) CancelFileLoading() bool {
	cancelled := e.loading.Cancel()
	log.Info().Bool("cancelled", cancelled).Msg("Cancel loading requested")
	return cancelled
}

// IsLoading reports whether a bulk load is in flight
func (e *Engine) IsLoading() bool {
	return e.loading.IsLoading()
}

// GetCurrentFile returns the tracked file, if any
func (e *Engine) GetCurrentFile() (string, bool) {
	return e.state.CurrentFile()
}

// State returns a copy of the monitor state
func (e *Engine) State() monitor.FileState {
	return e.state.Snapshot()
}

// Archive returns the archive store, or nil when archiving is disabled
func (e *Engine) Archive() *archive.Store {
	return e.archive
}

// Close stops every background worker, waits for them and closes the archive
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	if e.archive != nil {
		return e.archive.Close()
	}
	return nil
}
