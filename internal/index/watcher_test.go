package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notemind/internal/storage"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// startWatcher runs Watch on a fresh corpus dir and counts change bursts.
func startWatcher(t *testing.T) (string, *atomic.Int32, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	var changes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, dir, store.IsNote, 50*time.Millisecond, quietLogger(), func() { changes.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond)

	return dir, &changes, func() {
		cancel()
		<-done
	}
}

func TestWatcher_NoteWriteTriggersChange(t *testing.T) {
	defer verifyNoLeaks(t)()
	dir, changes, stop := startWatcher(t)
	defer stop()

	_ = os.WriteFile(filepath.Join(dir, "new.md"), []byte("Новая заметка о походе в горы на выходных."), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return changes.Load() >= 1
	}, "note write did not trigger a change")
}

func TestWatcher_BurstIsDebounced(t *testing.T) {
	defer verifyNoLeaks(t)()
	dir, changes, stop := startWatcher(t)
	defer stop()

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(filepath.Join(dir, "burst.md"), []byte("version "+string(rune('a'+i))), 0o644)
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return changes.Load() >= 1
	}, "burst did not trigger a change")
	time.Sleep(200 * time.Millisecond)
	if n := changes.Load(); n != 1 {
		t.Errorf("changes = %d, want 1 for a single burst", n)
	}
}

func TestWatcher_IgnoresNonNotes(t *testing.T) {
	defer verifyNoLeaks(t)()
	dir, changes, stop := startWatcher(t)
	defer stop()

	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte("not a note"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := changes.Load(); n != 0 {
		t.Errorf("changes = %d, want 0", n)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	defer verifyNoLeaks(t)()
	dir, changes, stop := startWatcher(t)
	defer stop()

	subDir := filepath.Join(dir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)
	base := changes.Load()

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("Заметка во вложенной папке про рецепты."), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return changes.Load() > base
	}, "note in new subdir did not trigger a change")
}
