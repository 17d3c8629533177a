package monitor

import "sync"

// CancelToken is a cooperative cancellation flag.
// Signalling does not interrupt blocking I/O; holders check it at well-defined points.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an unsignalled token
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Signal requests cancellation. Safe to call more than once.
func (t *CancelToken) Signal() {
	t.once.Do(func() { close(t.done) })
}

// IsSignalled reports whether Signal was called
func (t *CancelToken) IsSignalled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the token is signalled
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
