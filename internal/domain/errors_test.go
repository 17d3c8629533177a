package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"conflict", ErrLoadInProgress, KindConcurrentStateConflict},
		{"wrapped conflict", fmt.Errorf("start: %w", ErrLoadInProgress), KindConcurrentStateConflict},
		{"empty", ErrEmptyFile, KindEmptyFile},
		{"io", NewIOError("open", "/x.log", fs.ErrNotExist), KindIOError},
		{"other", ErrNoPath, KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestIOError(t *testing.T) {
	assert.Nil(t, NewIOError("read", "/x.log", nil))

	err := NewIOError("read", "/x.log", fs.ErrPermission)
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Equal(t, "read /x.log: permission denied", err.Error())
}

func TestIsContentReset(t *testing.T) {
	assert.True(t, IsContentReset(EventFileCleared))
	assert.True(t, IsContentReset(EventFileTruncated))
	assert.False(t, IsContentReset(EventNewLogsBatch))
}
