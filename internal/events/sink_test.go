package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SteelMorgan/logstream/internal/domain"
)

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	sink := Multi(a, nil, b)

	sink.Emit(Event{Name: domain.EventLoadingSuccess})

	assert.Equal(t, []string{domain.EventLoadingSuccess}, a.Names())
	assert.Equal(t, []string{domain.EventLoadingSuccess}, b.Names())
	assert.Same(t, a, Multi(nil, a))
}

func TestEmitterBatchCopies(t *testing.T) {
	rec := NewRecorder()
	em := Emitter{Sink: rec, File: "/var/log/app.log"}

	batch := []domain.LogEntry{{Severity: domain.SeverityInfo, Message: "one"}}
	em.Batch(batch)
	batch[0].Message = "mutated"

	assert.Equal(t, []string{"one"}, rec.Messages())
	assert.Equal(t, "/var/log/app.log", rec.Events()[0].File)
}

func TestEmitterError(t *testing.T) {
	rec := NewRecorder()
	Emitter{Sink: rec}.Error(domain.EventLoadingError, errors.New("boom"))

	evs := rec.Events()
	assert.Len(t, evs, 1)
	assert.Equal(t, domain.MessagePayload{Message: "boom"}, evs[0].Payload)
	assert.Equal(t, 1, rec.Count(domain.EventLoadingError))
}
