package events

import (
	"sync"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// Recorder keeps every event in memory. Used by tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Sink
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns recorded event names in order
func (r *Recorder) Names() []string {
	evs := r.Events()
	names := make([]string, len(evs))
	for i, ev := range evs {
		names[i] = ev.Name
	}
	return names
}

// Count returns how many events named name were recorded
func (r *Recorder) Count(name string) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// Has reports whether an event named name was recorded
func (r *Recorder) Has(name string) bool {
	return r.Count(name) > 0
}

// Entries flattens every new_logs_batch payload in order
func (r *Recorder) Entries() []domain.LogEntry {
	var out []domain.LogEntry
	for _, ev := range r.Events() {
		if ev.Name != domain.EventNewLogsBatch {
			continue
		}
		if batch, ok := ev.Payload.([]domain.LogEntry); ok {
			out = append(out, batch...)
		}
	}
	return out
}

// Messages returns the message of every recorded entry
func (r *Recorder) Messages() []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// Reset forgets everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
