package tailer

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Notifier wakes a tailing session early when the watched file is written.
// Polling stays the source of truth; notifications only shorten the sleep.
type Notifier struct {
	path    string
	watcher *fsnotify.Watcher
	ch      chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched so that
// a file recreated by rotation keeps producing notifications.
func Watch(path string) (*Notifier, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	n := &Notifier{
		path:    abs,
		watcher: w,
		ch:      make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	n.wg.Add(1)
	go n.loop()
	return n, nil
}

// C receives at most one pending wake-up at a time
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}

// Close stops watching. The wake-up channel is left open.
func (n *Notifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		n.wg.Wait()
	})
	return err
}

func (n *Notifier) loop() {
	defer n.wg.Done()

	events := n.watcher.Events
	errs := n.watcher.Errors
	for {
		select {
		case <-n.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != n.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				n.signal()
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Debug().Err(err).Str("file", n.path).Msg("File watcher error")
		}
	}
}

func (n *Notifier) signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}
