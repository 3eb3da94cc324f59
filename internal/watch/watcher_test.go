package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	active  atomic.Int32
	overlap atomic.Bool
	hold    time.Duration
}

func (r *recorder) run(ctx context.Context, changed []string) error {
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.active.Add(-1)
	time.Sleep(r.hold)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changed)
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func start(t *testing.T, dir string, rec *recorder) context.CancelFunc {
	t.Helper()
	w, err := New(dir, ".txt", 50*time.Millisecond, rec.run, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestInputWatcher_StartupRun(t *testing.T) {
	rec := &recorder{}
	start(t, t.TempDir(), rec)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.snapshot()[0])
}

func TestInputWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	for _, n := range []string{"b.txt", "a.txt", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a.txt", "b.txt"}, rec.snapshot()[1])

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 2, "one burst, one run")
}

func TestInputWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestInputWatcher_RunsNeverOverlap(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{hold: 150 * time.Millisecond}
	start(t, dir, rec)

	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
		time.Sleep(100 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 2 }, 3*time.Second, 5*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.False(t, rec.overlap.Load())
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), ".txt", 0, func(context.Context, []string) error { return nil }, nil)
	assert.Error(t, err)
}
