// Package watch re-analyzes PHP files as they change on disk.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/scanner"
)

// DefaultDebounce is how long a file must be quiet before it is analyzed
const DefaultDebounce = 200 * time.Millisecond

// Handler receives fresh reports for each batch of changed files
type Handler func(reports []*analyzer.FileReport)

// Watcher monitors a scanner's root directory
type Watcher struct {
	scanner  *scanner.Scanner
	debounce time.Duration
	handler  Handler

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	ready   chan struct{}
}

// New creates a Watcher. handler is called from a single goroutine.
func New(s *scanner.Scanner, debounce time.Duration, handler Handler) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		scanner:  s,
		debounce: debounce,
		handler:  handler,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		ready:    make(chan struct{}, 1),
	}, nil
}

// Run watches until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if _, err := os.Stat(w.scanner.Root()); err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.scanner.Root(), err)
	}
	if err := w.addTree(w.scanner.Root()); err != nil {
		return err
	}
	log.Info().Str("root", w.scanner.Root()).Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("file watcher error")

		case <-w.ready:
			w.analyze(ctx, w.takePending())
		}
	}
}

// addTree watches root and every directory below it that is not excluded
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.excludedDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to add watch")
		}
		return nil
	})
}

func (w *Watcher) excludedDir(path string) bool {
	rel, err := w.rel(path)
	return err == nil && w.scanner.Excluded(rel)
}

func (w *Watcher) rel(path string) (string, error) {
	rel, err := filepath.Rel(w.scanner.Root(), path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		// New directories need their own watch
		if err := w.addTreeIfDir(event.Name); err != nil {
			log.Debug().Err(err).Str("path", event.Name).Msg("not a new directory")
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	rel, err := w.rel(event.Name)
	if err != nil || !w.scanner.Matches(rel) {
		return
	}
	w.schedule(rel)
}

func (w *Watcher) addTreeIfDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return w.addTree(path)
}

// schedule records a changed file and restarts the debounce timer
func (w *Watcher) schedule(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush runs on the timer goroutine and wakes Run without blocking
func (w *Watcher) flush() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		batch = append(batch, rel)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(batch)
	return batch
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) analyze(ctx context.Context, batch []string) {
	present := batch[:0:0]
	for _, rel := range batch {
		if _, err := os.Stat(filepath.Join(w.scanner.Root(), filepath.FromSlash(rel))); err != nil {
			w.scanner.Forget(rel)
			log.Debug().Str("file", rel).Msg("file removed")
			continue
		}
		present = append(present, rel)
	}
	if len(present) == 0 {
		return
	}

	result, err := w.scanner.ScanFiles(ctx, present)
	if err != nil {
		log.Warn().Err(err).Int("files", len(present)).Msg("re-analysis failed")
		return
	}
	if w.handler != nil {
		w.handler(result.Reports)
	}
}
