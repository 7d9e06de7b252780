package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memArchive) CheckBucket(context.Context) error { return nil }

func (m *memArchive) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memArchive) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "mem://" + key, nil
}

func TestRecorder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TDWP.waypoints")
	if err := os.WriteFile(path, []byte("QGC WPL 110\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mem := &memArchive{objects: make(map[string][]byte)}
	r := NewRecorder(mem, func(role, action string) string {
		switch action {
		case "upload":
			return path
		case "upload-model":
			return filepath.Join(dir, "missing.waypoints")
		}
		return ""
	})
	r.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	r.ObserveAction("top", "upload", time.Second, nil)
	r.ObserveAction("top", "upload", time.Second, errors.New("upload failed"))
	r.ObserveAction("top", "upload-model", time.Second, nil)
	r.ObserveAction("top", "arm", time.Second, nil)
	r.Wait()

	if len(mem.objects) != 1 {
		t.Fatalf("archived %d objects, want 1", len(mem.objects))
	}
	if got := string(mem.objects["top/20250102T030405Z-TDWP.waypoints"]); got != "QGC WPL 110\n" {
		t.Errorf("archived content = %q", got)
	}
}
