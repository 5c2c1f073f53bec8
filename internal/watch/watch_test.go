package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcher_CallsBackOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.json")
	if err := os.WriteFile(path, []byte(`[]`), 0644); err != nil {
		t.Fatalf("Failed to create flows.json: %v", err)
	}

	var calls atomic.Int32
	w := New(Config{DebounceDelay: 20 * time.Millisecond}, nil)
	if err := w.Start(context.Background(), path, func(context.Context) { calls.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`[{"id":"n1"}]`), 0644); err != nil {
		t.Fatalf("Failed to update flows.json: %v", err)
	}

	if !waitFor(t, func() bool { return calls.Load() > 0 }) {
		t.Fatal("callback was not invoked after the file changed")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.json")
	if err := os.WriteFile(path, []byte(`[]`), 0644); err != nil {
		t.Fatalf("Failed to create flows.json: %v", err)
	}

	var calls atomic.Int32
	w := New(Config{DebounceDelay: 10 * time.Millisecond}, nil)
	if err := w.Start(context.Background(), path, func(context.Context) { calls.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "settings.js"), []byte(`module.exports = {}`), 0644); err != nil {
		t.Fatalf("Failed to write settings.js: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestWatcher_StopEndsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.json")
	if err := os.WriteFile(path, []byte(`[]`), 0644); err != nil {
		t.Fatalf("Failed to create flows.json: %v", err)
	}

	var calls atomic.Int32
	w := New(Config{DebounceDelay: 10 * time.Millisecond}, nil)
	if err := w.Start(context.Background(), path, func(context.Context) { calls.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()

	if err := os.WriteFile(path, []byte(`[1]`), 0644); err != nil {
		t.Fatalf("Failed to update flows.json: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d after Stop, want 0", got)
	}
}

func TestWatcher_StartErrors(t *testing.T) {
	w := New(Config{}, nil)
	if err := w.Start(context.Background(), "flows.json", nil); err == nil {
		t.Error("Start with nil callback succeeded")
	}
	if err := w.Start(context.Background(), filepath.Join(t.TempDir(), "missing", "flows.json"), func(context.Context) {}); err == nil {
		t.Error("Start on a missing directory succeeded")
	}
}
