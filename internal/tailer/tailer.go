// Package tailer follows one growing file and streams newly appended lines.
package tailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
	"github.com/SteelMorgan/logstream/internal/ingest"
	"github.com/SteelMorgan/logstream/internal/monitor"
	"github.com/SteelMorgan/logstream/internal/observability"
)

// DefaultPollInterval is the sleep between two poll cycles
const DefaultPollInterval = 200 * time.Millisecond

// Config holds tailer tuning
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	HashPrefix   int
}

// Tailer runs incremental tailing sessions registered in a monitor.State
type Tailer struct {
	cfg      Config
	state    *monitor.State
	pipeline *ingest.Pipeline
	sink     events.Sink
}

// New creates a tailer
func New(cfg Config, state *monitor.State, pipeline *ingest.Pipeline, sink events.Sink) *Tailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ingest.DefaultBatchSize
	}
	if cfg.HashPrefix <= 0 {
		cfg.HashPrefix = monitor.DefaultHashPrefix
	}
	return &Tailer{cfg: cfg, state: state, pipeline: pipeline, sink: sink}
}

// session is the per-loop state of one Run call
type session struct {
	monitor.Session
	id       string
	emit     events.Emitter
	lastSize uint64
	baseline bool   // next cycle only records the size
	lastErr  string // last reported monitoring error, to avoid repeating it every cycle
	lines    int64
}

// Run polls sess.Path until the session stops being active or ctx is done.
// wake may be nil; a receive on it starts the next cycle early.
func (t *Tailer) Run(ctx context.Context, sess monitor.Session, wake <-chan struct{}) {
	s := &session{
		Session:  sess,
		id:       uuid.NewString(),
		emit:     events.Emitter{Sink: t.sink, File: sess.Path},
		baseline: !(sess.Resumed && sess.Offset > 0),
	}

	ctx, span := observability.StartSpan(ctx, "tailer.session",
		observability.AttrFile.String(sess.Path),
		observability.AttrRunID.String(s.id),
		observability.AttrOffset.Int64(int64(sess.Offset)),
	)

	logger := log.With().Str("file", sess.Path).Str("session_id", s.id).Logger()

	snap, err := monitor.TakeSnapshot(sess.Path, t.cfg.HashPrefix)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open file for monitoring")
		t.state.EndMonitoring(sess)
		s.emit.Error(domain.EventMonitoringErr, fmt.Errorf("failed to open file: %w", err))
		observability.EndSpan(span, err, "open failed")
		return
	}
	s.lastSize = snap.Size

	logger.Info().
		Uint64("offset", sess.Offset).
		Bool("resumed", sess.Resumed).
		Dur("poll_interval", t.cfg.PollInterval).
		Msg("Monitoring started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.state.EndMonitoring(sess)
			logger.Info().Int64("lines", s.lines).Msg("Monitoring interrupted")
			span.SetAttributes(observability.AttrLines.Int64(s.lines))
			observability.EndSpan(span, nil, "interrupted")
			return
		case <-wake:
		case <-timer.C:
		}

		if !t.state.IsActive(sess) {
			logger.Info().Int64("lines", s.lines).Msg("Monitoring stopped")
			span.SetAttributes(observability.AttrLines.Int64(s.lines))
			observability.EndSpan(span, nil, "stopped")
			return
		}

		t.cycle(s)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.cfg.PollInterval)
	}
}

// cycle performs one poll: observe, reconcile, read and emit
func (t *Tailer) cycle(s *session) {
	snap, err := monitor.TakeSnapshot(s.Path, t.cfg.HashPrefix)
	if err != nil {
		t.reportError(s, fmt.Errorf("failed to get metadata: %w", err))
		return
	}

	shrunk := snap.Size < s.lastSize
	s.lastSize = snap.Size

	change, offset, ok := t.state.Reconcile(s.Session, snap, shrunk)
	if !ok {
		return
	}
	if change.IsReset() {
		log.Info().
			Str("file", s.Path).
			Str("session_id", s.id).
			Str("change", change.String()).
			Msg("File content reset, reading from start")
		s.emit.Emit(domain.EventFileCleared, nil)
	}

	if s.baseline {
		s.baseline = false
		return
	}
	if change == monitor.Unchanged || offset >= snap.Size {
		s.lastErr = ""
		return
	}

	buf, err := readFrom(s.Path, offset)
	if err != nil {
		t.reportError(s, err)
		return
	}
	s.lastErr = ""
	if len(buf) == 0 {
		return
	}

	if !t.state.CommitRead(s.Session, offset, uint64(len(buf))) {
		log.Debug().
			Str("file", s.Path).
			Uint64("offset", offset).
			Msg("Offset moved during read, discarding chunk")
		return
	}

	b := ingest.NewBatcher(t.cfg.BatchSize, s.emit.Batch)
	s.lines += int64(t.pipeline.Chunk(buf, b))
	b.Flush()
}

func (t *Tailer) reportError(s *session, err error) {
	msg := err.Error()
	if msg == s.lastErr {
		return
	}
	s.lastErr = msg
	log.Warn().Err(err).Str("file", s.Path).Str("session_id", s.id).Msg("Monitoring cycle failed")
	s.emit.Error(domain.EventMonitoringErr, err)
}

// readFrom reads path from offset through end-of-file
func readFrom(path string, offset uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewIOError("open", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, domain.NewIOError("seek", path, err)
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.NewIOError("read", path, err)
	}
	return buf, nil
}
