// Package loader replays a file from a stored or zero offset as one cancellable run.
package loader

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
	"github.com/SteelMorgan/logstream/internal/ingest"
	"github.com/SteelMorgan/logstream/internal/monitor"
	"github.com/SteelMorgan/logstream/internal/observability"
)

// Config holds loader tuning
type Config struct {
	BatchSize  int
	HashPrefix int
}

// Loader runs bulk loads. At most one run is in flight at a time.
type Loader struct {
	cfg      Config
	state    *monitor.State
	loading  *monitor.LoadingState
	pipeline *ingest.Pipeline
	sink     events.Sink
}

// New creates a loader sharing state and loading with the rest of the engine
func New(cfg Config, state *monitor.State, loading *monitor.LoadingState, pipeline *ingest.Pipeline, sink events.Sink) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ingest.DefaultBatchSize
	}
	if cfg.HashPrefix <= 0 {
		cfg.HashPrefix = monitor.DefaultHashPrefix
	}
	return &Loader{cfg: cfg, state: state, loading: loading, pipeline: pipeline, sink: sink}
}

type job struct {
	id        string
	path      string
	reloadAll bool
	token     *monitor.CancelToken
	lease     monitor.Lease
	emit      events.Emitter
	log       zerolog.Logger
}

// outcome is what a run reports once its flags are released
type outcome struct {
	events []events.Event
	err    error
}

func (j *job) finish(err error, names ...string) outcome {
	o := outcome{err: err}
	for _, name := range names {
		var payload any
		if name == domain.EventLoadingError && err != nil {
			payload = domain.MessagePayload{Message: err.Error()}
		}
		o.events = append(o.events, events.Event{Name: name, File: j.path, Payload: payload})
	}
	return o
}

// Start claims the loader for path and runs the load in the background.
// Loading is marked in flight before Start returns. The channel yields the
// run's error (nil on success, cancellation and content reset) and is then closed.
func (l *Loader) Start(ctx context.Context, path string, reloadAll bool) (<-chan error, error) {
	if path == "" {
		return nil, domain.ErrNoPath
	}

	tok, err := l.loading.Begin()
	if err != nil {
		return nil, err
	}
	lease, start, err := l.state.AcquireForLoad(path, reloadAll)
	if err != nil {
		l.loading.Finish(tok)
		return nil, err
	}

	j := &job{
		id:        uuid.NewString(),
		path:      path,
		reloadAll: reloadAll,
		token:     tok,
		lease:     lease,
		emit:      events.Emitter{Sink: l.sink, File: path},
	}
	j.log = log.With().Str("file", path).Str("run_id", j.id).Logger()
	j.log.Info().Bool("reload_all", reloadAll).Uint64("start_offset", start).Msg("Bulk load started")

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.execute(ctx, j)
	}()
	return done, nil
}

// Load runs a load and waits for it to finish
func (l *Loader) Load(ctx context.Context, path string, reloadAll bool) error {
	done, err := l.Start(ctx, path, reloadAll)
	if err != nil {
		return err
	}
	return <-done
}

// execute releases every flag before the terminal events go out, so a
// collaborator reacting to them can start the next run immediately
func (l *Loader) execute(ctx context.Context, j *job) error {
	ctx, span := observability.StartSpan(ctx, "loader.run",
		observability.AttrFile.String(j.path),
		observability.AttrRunID.String(j.id),
		observability.AttrReloadAll.Bool(j.reloadAll),
	)

	var o outcome
	defer func() {
		l.state.ReleaseLoader()
		l.loading.Finish(j.token)

		for _, ev := range o.events {
			l.sink.Emit(ev)
		}
		if len(o.events) > 0 {
			span.SetAttributes(observability.AttrOutcome.String(o.events[len(o.events)-1].Name))
		}
		observability.EndSpan(span, o.err, "bulk load")
	}()

	o = l.run(ctx, j)
	return o.err
}

func (l *Loader) run(ctx context.Context, j *job) outcome {
	snap, err := monitor.TakeSnapshot(j.path, l.cfg.HashPrefix)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to inspect file")
		return j.finish(err, domain.EventLoadingError)
	}

	start, reset, ok := l.state.ReconcileLoad(j.lease, snap)
	if !ok {
		j.log.Info().Msg("Current file reset before load began")
		return j.finish(nil, domain.EventLoadCancelled)
	}
	if reset {
		j.log.Info().Uint64("size", snap.Size).Msg("File truncated or replaced, loading from start")
		j.emit.Emit(domain.EventFileTruncated, nil)
	}

	if snap.Size == 0 {
		return j.finish(domain.ErrEmptyFile, domain.EventLoadingError)
	}

	var total uint64
	if start == 0 {
		if total, err = CountLines(j.path); err != nil {
			j.log.Warn().Err(err).Msg("Failed to count lines, progress is indeterminate")
			total = 0
		}
	}
	j.emit.Emit(domain.EventLoadProgress, domain.LoadProgress{Current: 0, Total: total})

	f, err := os.Open(j.path)
	if err != nil {
		return j.finish(domain.NewIOError("open", j.path, err), domain.EventLoadingError)
	}
	defer f.Close()

	if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
		return j.finish(domain.NewIOError("seek", j.path, err), domain.EventLoadingError)
	}

	var (
		reader   = bufio.NewReaderSize(f, 64*1024)
		batcher  = ingest.NewBatcher(l.cfg.BatchSize, j.emit.Batch)
		identity = snap.Digest()
		count    uint64
		reported uint64
	)
	batch := uint64(l.cfg.BatchSize)

	for {
		if j.token.IsSignalled() || ctx.Err() != nil {
			j.log.Info().Uint64("lines", count).Msg("Bulk load cancelled")
			batcher.Discard()
			return j.finish(nil, domain.EventLoadCancelled)
		}

		if !j.reloadAll {
			if cur, err := monitor.TakeSnapshot(j.path, l.cfg.HashPrefix); err == nil && !cur.Matches(identity) {
				j.log.Info().Uint64("lines", count).Msg("File content changed during load, resetting")
				batcher.Discard()
				l.state.ResetContent(j.lease, cur)
				return j.finish(nil, domain.EventFileTruncated)
			}
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return j.finish(domain.NewIOError("read", j.path, err), domain.EventLoadingError)
		}
		if len(line) == 0 {
			break
		}

		count++
		if !l.state.AdvanceOffset(j.lease, uint64(len(line))) {
			j.log.Info().Uint64("lines", count).Msg("Current file reset during load")
			batcher.Discard()
			return j.finish(nil, domain.EventLoadCancelled)
		}

		if count%batch == 0 || count == total {
			j.emit.Emit(domain.EventLoadProgress, domain.LoadProgress{Current: count, Total: total})
			reported = count
		}

		if entry, ok := l.pipeline.Line(line); ok {
			batcher.Add(entry)
		}

		if err != nil {
			break
		}
	}

	batcher.Flush()
	if reported != count {
		j.emit.Emit(domain.EventLoadProgress, domain.LoadProgress{Current: count, Total: total})
	}

	j.log.Info().Uint64("lines", count).Uint64("start_offset", start).Msg("Bulk load finished")

	if count == 0 && start > 0 {
		return j.finish(nil, domain.EventAlreadyLoaded, domain.EventLoadingSuccess)
	}
	return j.finish(nil, domain.EventLoadingSuccess)
}

