package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/collabgen/internal/models"
)

// ReportOp is the kind of change a ReportEvent describes.
type ReportOp int

const (
	// ReportSaved means a report was created or overwritten
	ReportSaved ReportOp = iota
	// ReportDeleted means a report was removed
	ReportDeleted
)

func (op ReportOp) String() string {
	switch op {
	case ReportSaved:
		return "saved"
	case ReportDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ReportEvent describes one change in a FileStore directory. Summary is
// nil for deletions.
type ReportEvent struct {
	Op      ReportOp
	ID      string
	Summary *models.ReportSummary
}

// watchDebounce coalesces the write and rename events of one save.
const watchDebounce = 100 * time.Millisecond

// Watch streams report changes made by any process writing to the store
// directory. The channel closes when ctx is done.
func (s *FileStore) Watch(ctx context.Context) (<-chan ReportEvent, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &StorageError{Op: "watch", Err: err}
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, &StorageError{Op: "watch", Err: fmt.Errorf("watch %s: %w", s.dir, err)}
	}

	rw := &reportWatcher{
		store:   s,
		watcher: w,
		out:     make(chan ReportEvent, 64),
		pending: make(map[string]*time.Timer),
		delay:   watchDebounce,
	}
	go rw.loop(ctx)
	return rw.out, nil
}

type reportWatcher struct {
	store   *FileStore
	watcher *fsnotify.Watcher
	out     chan ReportEvent
	delay   time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
	closed  bool
}

func (rw *reportWatcher) loop(ctx context.Context) {
	defer rw.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handle(ctx, ev)
		case _, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (rw *reportWatcher) handle(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	id := strings.TrimSuffix(name, ".json")
	if validateID(id) != nil {
		return
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		rw.debounce(ctx, id)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		rw.send(ReportEvent{Op: ReportDeleted, ID: id})
	}
}

func (rw *reportWatcher) debounce(ctx context.Context, id string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return
	}
	if t, ok := rw.pending[id]; ok && t.Stop() {
		rw.wg.Done()
	}
	rw.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(rw.delay, func() {
		defer rw.wg.Done()
		rw.mu.Lock()
		// A later write may already have queued a replacement.
		if rw.pending[id] == t {
			delete(rw.pending, id)
		}
		rw.mu.Unlock()

		r, err := rw.store.Get(ctx, id)
		if err != nil {
			return
		}
		summary := r.Summary()
		rw.send(ReportEvent{Op: ReportSaved, ID: id, Summary: &summary})
	})
	rw.pending[id] = t
}

// send drops the event when the consumer is not keeping up.
func (rw *reportWatcher) send(ev ReportEvent) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return
	}
	select {
	case rw.out <- ev:
	default:
	}
}

func (rw *reportWatcher) shutdown() {
	rw.mu.Lock()
	for id, t := range rw.pending {
		if t.Stop() {
			rw.wg.Done()
		}
		delete(rw.pending, id)
	}
	rw.mu.Unlock()

	// Timers already firing finish before the channel closes.
	rw.wg.Wait()

	rw.mu.Lock()
	rw.closed = true
	close(rw.out)
	rw.mu.Unlock()
	rw.watcher.Close()
}
