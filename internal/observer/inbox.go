// Package observer watches the inbox directory and enqueues task files as
// they appear, so operators can request work by dropping a YAML file.
package observer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/kilnworks/kiln/internal/domain"
	"github.com/kilnworks/kiln/internal/taskfile"
)

// Enqueuer receives tasks decoded from inbox files.
type Enqueuer interface {
	SaveTask(task *domain.Task) error
}

// InboxWatcher monitors the inbox for new or rewritten task files.
type InboxWatcher struct {
	dir      string
	store    Enqueuer
	watcher  *fsnotify.Watcher
	debounce time.Duration

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc

	// OnError receives watch/decode problems; nil means they are dropped.
	OnError func(path string, err error)
}

// NewInboxWatcher creates a watcher over dir, enqueuing into store.
func NewInboxWatcher(dir string, store Enqueuer) (*InboxWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch inbox: %w", err)
	}

	return &InboxWatcher{
		dir:      dir,
		store:    store,
		watcher:  watcher,
		debounce: 500 * time.Millisecond, // editors write in bursts
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching. Existing files are drained first so tasks dropped
// while the process was down are not lost.
func (w *InboxWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.drainExisting()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop stops watching.
func (w *InboxWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the debounce duration for batching file writes.
func (w *InboxWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *InboxWatcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isTaskFile(entry.Name()) {
			w.ingest(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func isTaskFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (w *InboxWatcher) handleEvent(event fsnotify.Event) {
	if !isTaskFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *InboxWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path := range pending {
		w.ingest(path)
	}
}

// ingest decodes one inbox file, enqueues it, and archives the file so it
// is not enqueued twice.
func (w *InboxWatcher) ingest(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.reportError(path, err)
		return
	}
	f, err := taskfile.Decode(data)
	if err != nil {
		w.reportError(path, err)
		return
	}

	task := f.Task(uuid.NewString(), time.Now().UTC())
	if err := w.store.SaveTask(task); err != nil {
		w.reportError(path, err)
		return
	}

	archived := filepath.Join(w.dir, "archive")
	if err := os.MkdirAll(archived, 0o755); err == nil {
		os.Rename(path, filepath.Join(archived, filepath.Base(path)))
	}
}

func (w *InboxWatcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}
