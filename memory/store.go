// Package memory holds what rulelens remembers between runs: reflection
// issues appended after runs, the reader profile and the domain mappings
// that are injected into prompts as context.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/pithecene-io/rulelens/types"
)

// Default file names.
const (
	DefaultDir         = "memory"
	DefaultMemoryFile  = "memory.json"
	ProfileFile        = "user_profile.json"
	MappingsFile       = "mappings.json"
	lockRetryDelay     = 25 * time.Millisecond
	defaultLockTimeout = 5 * time.Second
)

// FileStore appends memory items to a JSON array file.
//
// Appends are read-modify-write under an exclusive lock on <path>.lock, so
// concurrent processes do not lose items. An unreadable or malformed file
// restarts from an empty list.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = filepath.Join(DefaultDir, DefaultMemoryFile)
	}
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Append adds item to the store. Ts is stamped (RFC 3339, UTC) when empty.
func (s *FileStore) Append(ctx context.Context, item types.MemoryItem) error {
	if item.Ts == "" {
		item.Ts = s.now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("memory: encode item: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("memory: create dir: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultLockTimeout)
		defer cancel()
	}
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("memory: lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("memory: lock %s: not acquired", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	items := s.readRaw()
	items = append(items, raw)
	return s.writeRaw(items)
}

// Load returns every item that decodes as a MemoryItem, in file order.
// A missing or malformed file yields an empty list.
func (s *FileStore) Load() ([]types.MemoryItem, error) {
	var out []types.MemoryItem
	for _, raw := range s.readRaw() {
		var item types.MemoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// readRaw keeps items as raw JSON so entries written by other tools survive.
func (s *FileStore) readRaw() []json.RawMessage {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}

func (s *FileStore) writeRaw(items []json.RawMessage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("memory: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("memory: replace %s: %w", s.path, err)
	}
	return nil
}
