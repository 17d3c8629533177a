package ingest

import (
	"strings"
	"time"

	"github.com/SteelMorgan/logstream/internal/charset"
	"github.com/SteelMorgan/logstream/internal/classifier"
	"github.com/SteelMorgan/logstream/internal/domain"
)

// Pipeline decodes raw bytes and classifies the resulting lines.
// It is shared by the tailer and the loader.
type Pipeline struct {
	normalizer *charset.Normalizer
	classifier *classifier.Classifier
	now        func() time.Time
}

// NewPipeline creates a pipeline. A nil clock means time.Now.
func NewPipeline(n *charset.Normalizer, c *classifier.Classifier, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{normalizer: n, classifier: c, now: now}
}

// Entry classifies one decoded line. ok is false for blank lines.
func (p *Pipeline) Entry(line string, ts time.Time) (domain.LogEntry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return domain.LogEntry{}, false
	}
	sev, msg := p.classifier.Classify(trimmed)
	return domain.LogEntry{Timestamp: ts, Severity: sev, Message: msg}, true
}

// Line decodes and classifies a single raw line
func (p *Pipeline) Line(raw []byte) (domain.LogEntry, bool) {
	return p.Entry(p.normalizer.Decode(raw), p.now())
}

// Chunk decodes a buffer holding any number of lines and feeds every
// non-blank one to b in file order. It returns how many entries were added.
func (p *Pipeline) Chunk(raw []byte, b *Batcher) int {
	text := p.normalizer.Decode(raw)
	ts := p.now()

	added := 0
	for _, line := range strings.Split(text, "\n") {
		if e, ok := p.Entry(line, ts); ok {
			b.Add(e)
			added++
		}
	}
	return added
}
