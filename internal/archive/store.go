// Package archive keeps a local bbolt copy of every emitted batch, one bucket per file.
package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
	"github.com/SteelMorgan/logstream/internal/retry"
)

// Store persists log entries per source file
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the archive at path. A database locked by another
// process is retried according to rc before giving up.
func Open(ctx context.Context, path string, rc retry.Config) (*Store, error) {
	rc.Retryable = retry.On(bbolt.ErrTimeout)

	db, err := retry.DoWithResult(ctx, rc, func() (*bbolt.DB, error) {
		return bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive (file may be locked by another process): %w", err)
	}

	log.Info().
		Str("db_path", path).
		Msg("Archive opened")

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Append adds entries to the end of file's bucket
func (s *Store) Append(file string, entries []domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(file))
		if err != nil {
			return err
		}
		for _, e := range entries {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			val, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append entries: %w", err)
	}
	return nil
}

// Reset drops everything archived for file
func (s *Store) Reset(file string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(file)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(file))
	})
	if err != nil {
		return fmt.Errorf("failed to reset archive: %w", err)
	}
	return nil
}

// Count returns how many entries are archived for file
func (s *Store) Count(file string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(file)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Entries returns the newest limit entries for file in file order.
// limit <= 0 returns everything.
func (s *Store) Entries(file string, limit int) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(file))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var e domain.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Files lists every file with archived entries
func (s *Store) Files() ([]string, error) {
	var files []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			files = append(files, string(name))
			return nil
		})
	})
	return files, err
}

// Emit implements events.Sink: batches are appended, content resets clear the file
func (s *Store) Emit(ev events.Event) {
	if ev.File == "" {
		return
	}

	var err error
	switch {
	case ev.Name == domain.EventNewLogsBatch:
		if entries, ok := ev.Payload.([]domain.LogEntry); ok {
			err = s.Append(ev.File, entries)
		}
	case domain.IsContentReset(ev.Name):
		err = s.Reset(ev.File)
	}
	if err != nil {
		log.Warn().Err(err).Str("file", ev.File).Str("event", ev.Name).Msg("Archive write failed")
	}
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
