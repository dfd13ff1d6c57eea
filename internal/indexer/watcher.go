package indexer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before re-indexing
const DefaultDebounce = 250 * time.Millisecond

// Watcher keeps the index in sync with a directory tree. Created and
// modified files are re-indexed; removed and renamed files are dropped.
type Watcher struct {
	indexer  *Indexer
	root     string
	debounce time.Duration
	lock     *IndexLock

	// OnSync is called after each debounced batch, if set
	OnSync func(*Statistics)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]fsnotify.Op
	timer   *time.Timer
	flush   chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for root. A non-positive debounce uses
// DefaultDebounce. lock may be nil.
func NewWatcher(idx *Indexer, root string, debounce time.Duration, lock *IndexLock) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if lock == nil {
		lock = &IndexLock{}
	}
	return &Watcher{
		indexer:  idx,
		root:     root,
		debounce: debounce,
		lock:     lock,
		pending:  make(map[string]fsnotify.Op),
		flush:    make(chan struct{}, 1),
	}
}

// Start begins watching root and every non-hidden directory below it
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		_ = w.Close()
		return err
	}

	w.wg.Add(1)
	go w.watchLoop(watchCtx)

	w.indexer.logger.Info("watching for changes", "root", w.root, "debounce", w.debounce)
	return nil
}

// Close stops the watcher and waits for an in-flight sync to finish
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case <-w.flush:
			w.Sync(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.indexer.logger.Warn("watch error", "root", w.root, "error", err)
		}
	}
}

// handle records a file event and schedules a sync
func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if err := w.addTree(event.Name); err != nil {
					w.indexer.logger.Debug("failed to watch directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !w.indexer.Accepts(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] |= event.Op
	w.scheduleLocked()
}

// scheduleLocked restarts the debounce timer. The sync itself runs on the
// watch loop goroutine. Callers hold w.mu.
func (w *Watcher) scheduleLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flush <- struct{}{}:
		default:
		}
	})
}

// Sync applies every pending change. A file that still exists is
// re-indexed whatever its events were; a missing file is removed.
func (w *Watcher) Sync(ctx context.Context) *Statistics {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	if len(pending) == 0 {
		return &Statistics{}
	}

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var stats *Statistics
	err := w.lock.Run(func() error {
		stats = w.apply(ctx, paths)
		return nil
	})
	if errors.Is(err, ErrIndexingInProgress) {
		// Put the changes back and retry after the next debounce
		w.requeue(pending)
		return &Statistics{}
	}

	if w.OnSync != nil {
		w.OnSync(stats)
	}
	return stats
}

func (w *Watcher) apply(ctx context.Context, paths []string) *Statistics {
	var update []string
	stats := &Statistics{Errors: make([]string, 0)}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			update = append(update, path)
			continue
		}
		removed, err := w.indexer.removeMissing(ctx, path)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, path+": "+err.Error())
			continue
		}
		if removed {
			stats.Removed++
		}
	}

	if len(update) > 0 {
		indexed, err := w.indexer.IndexFiles(ctx, update)
		if indexed != nil {
			stats.Indexed += indexed.Indexed
			stats.Skipped += indexed.Skipped
			stats.Failed += indexed.Failed
			stats.Chunks += indexed.Chunks
			stats.Duration += indexed.Duration
			stats.Errors = append(stats.Errors, indexed.Errors...)
		}
		if err != nil {
			w.indexer.logger.Warn("watch sync interrupted", "error", err)
		}
	}

	w.indexer.logger.Info("watch sync complete",
		"indexed", stats.Indexed,
		"removed", stats.Removed,
		"failed", stats.Failed)
	return stats
}

func (w *Watcher) requeue(pending map[string]fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, op := range pending {
		w.pending[path] |= op
	}
	if w.watcher != nil {
		w.scheduleLocked()
	}
}

// addTree watches dir and its non-hidden subdirectories
func (w *Watcher) addTree(dir string) error {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
