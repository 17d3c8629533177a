package events

import (
	"github.com/SteelMorgan/logstream/internal/domain"
)

// Event is one notification pushed to the collaborator
type Event struct {
	Name    string `json:"event"`
	File    string `json:"file,omitempty"` // File the event belongs to
	Payload any    `json:"payload,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use;
// the tailer and the loader emit from their own goroutines.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

type multiSink []Sink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Multi fans events out to every non-nil sink in order
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Emitter binds a sink to a file so components don't repeat it on every call
type Emitter struct {
	Sink Sink
	File string
}

// Emit sends a named event with payload
func (e Emitter) Emit(name string, payload any) {
	e.Sink.Emit(Event{Name: name, File: e.File, Payload: payload})
}

// Batch emits a copy of entries as new_logs_batch
func (e Emitter) Batch(entries []domain.LogEntry) {
	batch := make([]domain.LogEntry, len(entries))
	copy(batch, entries)
	e.Emit(domain.EventNewLogsBatch, batch)
}

// Error emits an error event carrying err's message
func (e Emitter) Error(name string, err error) {
	e.Emit(name, domain.MessagePayload{Message: err.Error()})
}
