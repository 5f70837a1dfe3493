package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/rulelens/types"
)

func TestFileStore_AppendCreatesAndExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	s := NewFileStore(path)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	ctx := t.Context()

	first := types.MemoryItem{Type: types.MemoryItemReflection, Issues: []string{"missing DEFAULT branch"}, RunID: "r1"}
	if err := s.Append(ctx, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, types.MemoryItem{Type: types.MemoryItemReflection, Issues: []string{}}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	items, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Issues[0] != "missing DEFAULT branch" || items[0].RunID != "r1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].Ts != "2026-05-01T10:00:00Z" {
		t.Errorf("Ts = %q, want stamped time", items[0].Ts)
	}
}

func TestFileStore_MalformedFileRestartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if err := s.Append(t.Context(), types.MemoryItem{Type: types.MemoryItemReflection}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	items, _ := s.Load()
	if len(items) != 1 {
		t.Errorf("len(items) = %d, want 1", len(items))
	}
}

func TestFileStore_PreservesForeignEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte(`[{"type":"note","text":"keep me"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if err := s.Append(t.Context(), types.MemoryItem{Type: types.MemoryItemReflection}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not a JSON array: %v", err)
	}
	if len(raw) != 2 || raw[0]["text"] != "keep me" {
		t.Errorf("file contents = %v", raw)
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate stores model separate processes sharing the file.
			errs <- NewFileStore(path).Append(t.Context(), types.MemoryItem{Type: types.MemoryItemReflection})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	items, _ := NewFileStore(path).Load()
	if len(items) != writers {
		t.Errorf("len(items) = %d, want %d", len(items), writers)
	}
}

func TestFileStore_DefaultPath(t *testing.T) {
	if got := NewFileStore("").Path(); got != filepath.Join("memory", "memory.json") {
		t.Errorf("Path = %q", got)
	}
}
