package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestMatchExtension(t *testing.T) {
	w := NewWatcher(nil, []string{".txt", ".PDF"}, false, nil, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/docs/chart.txt", true},
		{"/docs/chart.TXT", true},
		{"/docs/chart.pdf", true},
		{"/docs/chart.png", false},
		{"/docs/noext", false},
	}
	for _, tt := range tests {
		if got := w.matchExtension(tt.path); got != tt.want {
			t.Errorf("matchExtension(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatchExtension_EmptyListMatchesAll(t *testing.T) {
	w := NewWatcher(nil, nil, false, nil, nil)
	if !w.matchExtension("/docs/anything.xyz") {
		t.Error("empty extension list should match everything")
	}
}

func TestDirectories(t *testing.T) {
	w := NewWatcher([]string{"/a", "/b"}, nil, false, nil, nil)
	dirs := w.Directories()
	if len(dirs) != 2 || dirs[0] != "/a" || dirs[1] != "/b" {
		t.Errorf("Directories() = %v", dirs)
	}
	dirs[0] = "mutated"
	if w.Directories()[0] != "/a" {
		t.Error("Directories() must return a copy")
	}
}

func TestWatcher_IngestsWrittenFile(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	ingested := make(map[string]int)
	w := NewWatcher([]string{dir}, []string{".txt"}, true, func(path string) {
		mu.Lock()
		ingested[path]++
		mu.Unlock()
	}, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	txt := filepath.Join(dir, "chart.txt")
	if err := os.WriteFile(txt, []byte("chest 52"), 0644); err != nil {
		t.Fatal(err)
	}
	// A file with a filtered extension must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{1}, 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := ingested[txt]
		ignored := len(ingested) > 1
		mu.Unlock()
		if n >= 1 || time.Now().After(deadline) {
			if n < 1 {
				t.Fatal("written .txt file was never ingested")
			}
			if ignored {
				t.Errorf("filtered extension was ingested: %v", ingested)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_StartTwiceIsNoop(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir}, nil, false, nil, nil)
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		t.Errorf("second Start: %v", err)
	}
}
