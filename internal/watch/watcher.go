package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunFunc performs one upload run. changed lists the files whose arrival
// triggered it; it is empty for the startup run.
type RunFunc func(ctx context.Context, changed []string) error

// InputWatcher triggers a run when matching files land in the input
// directory. Bursts of events are debounced into one trigger, and runs never
// overlap: triggers that arrive mid-run collapse into a single follow-up.
type InputWatcher struct {
	dir      string
	ext      string
	run      RunFunc
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	trigger chan struct{}
}

func New(dir, ext string, debounce time.Duration, run RunFunc, logger *slog.Logger) (*InputWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &InputWatcher{
		dir:      dir,
		ext:      ext,
		run:      run,
		logger:   logger,
		debounce: debounce,
		watcher:  w,
		pending:  make(map[string]struct{}),
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Run does one startup run for files already waiting, then serves triggers
// until ctx is done.
func (iw *InputWatcher) Run(ctx context.Context) error {
	defer iw.watcher.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		iw.consume(ctx)
	}()
	iw.signal()

	iw.logger.Info("watching input directory", "dir", iw.dir, "ext", iw.ext)
	for {
		select {
		case <-ctx.Done():
			iw.stopTimer()
			<-done
			return nil
		case event, ok := <-iw.watcher.Events:
			if !ok {
				<-done
				return nil
			}
			iw.handleEvent(event)
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				<-done
				return nil
			}
			iw.logger.Warn("watch error", "err", err)
		}
	}
}

func (iw *InputWatcher) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), iw.ext) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	iw.mu.Lock()
	defer iw.mu.Unlock()
	iw.pending[event.Name] = struct{}{}
	if iw.timer != nil {
		iw.timer.Stop()
	}
	iw.timer = time.AfterFunc(iw.debounce, iw.signal)
}

func (iw *InputWatcher) signal() {
	select {
	case iw.trigger <- struct{}{}:
	default:
	}
}

func (iw *InputWatcher) stopTimer() {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if iw.timer != nil {
		iw.timer.Stop()
	}
}

// consume is the only caller of run.
func (iw *InputWatcher) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-iw.trigger:
		}

		changed := iw.drain()
		iw.logger.Info("run triggered", "changed", len(changed))
		if err := iw.run(ctx, changed); err != nil {
			iw.logger.Error("triggered run failed", "err", err)
		}
	}
}

func (iw *InputWatcher) drain() []string {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	files := make([]string, 0, len(iw.pending))
	for f := range iw.pending {
		files = append(files, filepath.Base(f))
	}
	iw.pending = make(map[string]struct{})
	sort.Strings(files)
	return files
}
