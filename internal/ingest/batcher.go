package ingest

import "github.com/SteelMorgan/logstream/internal/domain"

// DefaultBatchSize is the number of entries per emitted batch
const DefaultBatchSize = 568

// Batcher groups entries into bounded, ordered batches
type Batcher struct {
	size  int
	buf   []domain.LogEntry
	flush func([]domain.LogEntry)
}

// NewBatcher creates a batcher calling flush with every completed batch.
// flush must not retain the slice.
func NewBatcher(size int, flush func([]domain.LogEntry)) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{
		size:  size,
		buf:   make([]domain.LogEntry, 0, size),
		flush: flush,
	}
}

// Add appends an entry and emits the batch as soon as it is full
func (b *Batcher) Add(e domain.LogEntry) {
	b.buf = append(b.buf, e)
	if len(b.buf) >= b.size {
		b.emit()
	}
}

// Flush emits any partial batch
func (b *Batcher) Flush() {
	if len(b.buf) > 0 {
		b.emit()
	}
}

// Pending returns the number of entries not yet emitted
func (b *Batcher) Pending() int {
	return len(b.buf)
}

// Discard drops the partial batch without emitting it
func (b *Batcher) Discard() {
	b.buf = b.buf[:0]
}

func (b *Batcher) emit() {
	b.flush(b.buf)
	b.buf = b.buf[:0]
}
