// Package store persists a single session record on local disk. Writes are
// atomic (temp file + rename) so a crash or failed save can never corrupt
// the last good record.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// maxHistory mirrors the in-memory history bound. The store clamps on write
// as a second line of defense so the file never grows unbounded even if the
// upstream invariant were violated.
const maxHistory = 3

// Record is the on-disk representation of one session. The prompt preamble
// is deliberately absent: it is always recomputed from these fields on
// restore. Unknown fields in a future format are ignored on read.
type Record struct {
	SessionID         string      `json:"session_id"`
	Profile           string      `json:"profile"`
	JobContext        string      `json:"job_context"`
	SystemInstruction string      `json:"system_instruction"`
	CreatedAt         string      `json:"created_at"` // RFC 3339
	History           [][2]string `json:"history"`    // [question, answer] pairs, oldest first
}

// Store is the persistence contract consumed by the session manager.
type Store interface {
	// Save atomically replaces the persisted record.
	Save(rec Record) error
	// Load reads the persisted record. ok is false when no record exists.
	Load() (rec Record, ok bool, err error)
	// Delete removes the persisted record. Idempotent.
	Delete() error
}

// FileStore is a Store backed by a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to the given file path. Parent
// directories are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the destination file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save serializes rec and writes it atomically: the record is written to a
// temp file in the destination directory, flushed to disk, then renamed over
// the destination. On any failure the temp artifact is removed and the prior
// destination content is left untouched.
func (s *FileStore) Save(rec Record) error {
	if len(rec.History) > maxHistory {
		rec.History = rec.History[len(rec.History)-maxHistory:]
	}

	data, err := sonic.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: %w: marshal: %v", ErrSave, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: %w: %v", ErrSave, err)
	}

	return nil
}

// Load reads and deserializes the destination file. A missing file is not an
// error: ok is false. Present but unparseable content yields ErrCorrupt.
func (s *FileStore) Load() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("store: read %q: %w", s.path, err)
	}

	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("store: %w: %v", ErrCorrupt, err)
	}
	if rec.SessionID == "" {
		return Record{}, false, fmt.Errorf("store: %w: missing session_id", ErrCorrupt)
	}

	if len(rec.History) > maxHistory {
		rec.History = rec.History[len(rec.History)-maxHistory:]
	}
	return rec, true, nil
}

// Delete removes the persisted record. Missing files are ignored.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %q: %w", s.path, err)
	}
	return nil
}
