package monitor

import (
	"sync"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// LoadingState tracks the single in-flight bulk load
type LoadingState struct {
	mu      sync.Mutex
	token   *CancelToken
	loading bool
}

// NewLoadingState creates an idle loading state
func NewLoadingState() *LoadingState {
	return &LoadingState{}
}

// Begin marks a load as in flight and hands out its cancellation token.
// A second Begin before Finish fails with domain.ErrLoadInProgress.
func (l *LoadingState) Begin() (*CancelToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loading {
		return nil, domain.ErrLoadInProgress
	}
	l.token = NewCancelToken()
	l.loading = true
	return l.token, nil
}

// Finish clears the loading flag for the run owning tok
func (l *LoadingState) Finish(tok *CancelToken) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != tok {
		return
	}
	l.token = nil
	l.loading = false
}

// Cancel signals the in-flight load. It reports false when there is nothing to cancel.
// The flag itself is cleared by the loader when it exits.
func (l *LoadingState) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == nil || l.token.IsSignalled() {
		return false
	}
	l.token.Signal()
	return true
}

// IsLoading reports whether a load is in flight
func (l *LoadingState) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}
