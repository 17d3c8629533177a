package monitor

import (
	"sync"
	"time"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// FileState is a point-in-time copy of the monitor state
type FileState struct {
	CurrentFile   string
	CurrentOffset uint64
	InitialHash   *Digest
	LastModified  time.Time
	IsRunning     bool
	LoaderActive  bool
}

// Session identifies one tailer loop started by StartMonitoring
type Session struct {
	Path       string
	Generation uint64
	Offset     uint64 // Offset the session starts from
	Resumed    bool   // Path matched the current file, offset was kept
}

// Lease is a loader's claim on the offset, issued by AcquireForLoad.
// SetCurrentFile revokes it, even for the same path.
type Lease struct {
	Path string
	id   uint64
}

// State is the shared source of truth for which file is tracked and how far it was read.
// One instance lives for the whole process; the tailer and the loader both hold it.
// Every method is a single critical section.
type State struct {
	mu sync.Mutex

	currentFile  string // "" means no session
	offset       uint64
	hash         *Digest
	lastModified time.Time
	running      bool

	generation   uint64 // bumped per started tailer session
	loaderActive bool   // a loader run owns offset mutation
	leaseID      uint64 // bumped per acquired lease and per SetCurrentFile
}

// NewState creates an empty monitor state
func NewState() *State {
	return &State{}
}

// SetCurrentFile switches the tracked file and forgets offset, digest and mtime.
// Any tailer session ends with it and an in-flight loader loses its lease.
func (s *State) SetCurrentFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentFile = path
	s.running = false
	s.leaseID++
	s.offset = 0
	s.hash = nil
	s.lastModified = time.Time{}
}

// CurrentFile returns the tracked file, if any
func (s *State) CurrentFile() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile, s.currentFile != ""
}

// Snapshot returns a copy of all fields
func (s *State) Snapshot() FileState {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs := FileState{
		CurrentFile:   s.currentFile,
		CurrentOffset: s.offset,
		LastModified:  s.lastModified,
		IsRunning:     s.running,
		LoaderActive:  s.loaderActive,
	}
	if s.hash != nil {
		d := *s.hash
		fs.InitialHash = &d
	}
	return fs
}

// StartMonitoring registers a tailer session for path.
// It returns false when a session for the same path is already running.
// For a new path the session starts at the end of the file described by snap
// (0 when the file could not be observed); for the current path the stored offset is kept.
func (s *State) StartMonitoring(path string, snap *Snapshot) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.currentFile == path {
		return Session{}, false
	}

	sess := Session{Path: path}
	if s.currentFile == path {
		sess.Resumed = true
	} else {
		s.currentFile = path
		s.offset = 0
		s.hash = nil
		s.lastModified = time.Time{}
		if snap != nil {
			d := snap.Digest()
			s.offset = snap.Size
			s.hash = &d
			s.lastModified = snap.ModTime
		}
	}

	s.running = true
	s.generation++
	sess.Generation = s.generation
	sess.Offset = s.offset
	return sess, true
}

// StopMonitoring clears the running flag. File and offset are kept so monitoring can resume.
func (s *State) StopMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// IsActive reports whether sess is still the live tailer session
func (s *State) IsActive(sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(sess)
}

// EndMonitoring clears the running flag if sess is still the current session
func (s *State) EndMonitoring(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == sess.Generation && s.currentFile == sess.Path {
		s.running = false
	}
}

func (s *State) activeLocked(sess Session) bool {
	return s.running && s.currentFile == sess.Path && s.generation == sess.Generation
}

// Reconcile applies a tailer observation. ok is false when the session is no longer
// active or a loader currently owns the offset; the cycle must then be skipped.
func (s *State) Reconcile(sess Session, snap Snapshot, shrunk bool) (change Change, offset uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.activeLocked(sess) || s.loaderActive {
		return Unchanged, s.offset, false
	}
	change = s.reconcileLocked(snap, shrunk)
	return change, s.offset, true
}

// CommitRead advances the offset past n bytes read from `from`.
// It fails, and the bytes must be discarded, if the offset moved meanwhile,
// the session ended, or a loader took over.
func (s *State) CommitRead(sess Session, from, n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.activeLocked(sess) || s.loaderActive || s.offset != from {
		return false
	}
	s.offset = from + n
	return true
}

// reconcileLocked compares snap with the stored offset and digest, resets on
// truncation or content change, and records the fresh digest and mtime
func (s *State) reconcileLocked(snap Snapshot, shrunk bool) Change {
	change := Detect(s.offset, s.hash, snap, shrunk)
	if change.IsReset() {
		s.offset = 0
	}
	d := snap.Digest()
	s.hash = &d
	s.lastModified = snap.ModTime
	return change
}

// AcquireForLoad gives the loader ownership of the offset and returns where it starts:
// 0 for reloadAll or a different path, the stored offset otherwise.
func (s *State) AcquireForLoad(path string, reloadAll bool) (Lease, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaderActive {
		return Lease{}, 0, domain.ErrLoadInProgress
	}
	s.loaderActive = true
	s.leaseID++

	if s.currentFile != path {
		s.currentFile = path
		s.offset = 0
		s.hash = nil
		s.lastModified = time.Time{}
		s.running = false
	} else if reloadAll {
		s.offset = 0
	}
	return Lease{Path: path, id: s.leaseID}, s.offset, nil
}

func (s *State) heldLocked(l Lease) bool {
	return s.loaderActive && s.leaseID == l.id && s.currentFile == l.Path
}

// Held reports whether l still owns the offset
func (s *State) Held(l Lease) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heldLocked(l)
}

// ReconcileLoad checks the loader's snapshot against the stored identity.
// It returns the offset to start from and whether a content reset happened.
// A missing digest counts as a reset. ok is false once the lease was revoked.
func (s *State) ReconcileLoad(l Lease, snap Snapshot) (start uint64, reset bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.heldLocked(l) {
		return 0, false, false
	}
	unknown := s.hash == nil
	change := s.reconcileLocked(snap, false)
	if unknown {
		s.offset = 0
	}
	return s.offset, unknown || change.IsReset(), true
}

// AdvanceOffset moves the loader's offset by n bytes. It returns false once
// the lease was revoked.
func (s *State) AdvanceOffset(l Lease, n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.heldLocked(l) {
		return false
	}
	s.offset += n
	return true
}

// ResetContent restarts the leased file from byte 0 with a fresh identity
func (s *State) ResetContent(l Lease, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.heldLocked(l) {
		return
	}
	d := snap.Digest()
	s.offset = 0
	s.hash = &d
	s.lastModified = snap.ModTime
}

// ReleaseLoader ends loader ownership of the offset
func (s *State) ReleaseLoader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaderActive = false
}
