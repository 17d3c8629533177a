package monitor

import (
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"time"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// DefaultHashPrefix is how many leading bytes identify a file
const DefaultHashPrefix = 1024

// Digest is a SHA-256 of the first Length bytes of a file
type Digest struct {
	Sum    [sha256.Size]byte
	Length int
}

// Snapshot is what a single observation of a file yields
type Snapshot struct {
	Size    uint64
	ModTime time.Time
	head    []byte // up to the hash prefix
}

// Digest hashes the whole observed head
func (s Snapshot) Digest() Digest {
	return Digest{Sum: sha256.Sum256(s.head), Length: len(s.head)}
}

// Matches reports whether the file still starts with the bytes d was computed from.
// Only d.Length bytes are compared, so a short file that grew is still a match.
func (s Snapshot) Matches(d Digest) bool {
	if len(s.head) < d.Length {
		return false
	}
	return sha256.Sum256(s.head[:d.Length]) == d.Sum
}

// TakeSnapshot stats path and reads at most prefix bytes from its start
func TakeSnapshot(path string, prefix int) (Snapshot, error) {
	if prefix <= 0 {
		prefix = DefaultHashPrefix
	}

	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, domain.NewIOError("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Snapshot{}, domain.NewIOError("stat", path, err)
	}

	head := make([]byte, prefix)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Snapshot{}, domain.NewIOError("hash", path, err)
	}

	return Snapshot{
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
		head:    head[:n],
	}, nil
}

// HashFileStart returns the digest of at most prefix leading bytes of path
func HashFileStart(path string, prefix int) (Digest, error) {
	snap, err := TakeSnapshot(path, prefix)
	if err != nil {
		return Digest{}, err
	}
	return snap.Digest(), nil
}

// Change classifies a file observation against the recorded read position
type Change int

const (
	// Unchanged means no new bytes since the recorded offset
	Unchanged Change = iota
	// Stable means the file grew past the offset and its identity holds
	Stable
	// Truncated means the file is now shorter than the recorded offset (or shrank)
	Truncated
	// ContentChanged means the leading bytes no longer match the recorded digest
	ContentChanged
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Stable:
		return "stable"
	case Truncated:
		return "truncated"
	case ContentChanged:
		return "content_changed"
	default:
		return "unknown"
	}
}

// IsReset reports whether the change forces reading from byte 0
func (c Change) IsReset() bool {
	return c == Truncated || c == ContentChanged
}

// Detect classifies snap against offset and the stored digest.
// shrunk is set by callers that saw the size drop since their previous observation.
// A nil stored digest skips the identity check.
func Detect(offset uint64, stored *Digest, snap Snapshot, shrunk bool) Change {
	switch {
	case offset > snap.Size || shrunk:
		return Truncated
	case stored != nil && !snap.Matches(*stored):
		return ContentChanged
	case offset == snap.Size:
		return Unchanged
	default:
		return Stable
	}
}
