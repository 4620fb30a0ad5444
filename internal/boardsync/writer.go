package boardsync

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"whiteboard/internal/scene"
)

// Writer is the debounced persistence writer. Schedule restarts the quiet
// period; when it elapses the latest scheduled scene is written. Writes are
// retried with exponential backoff and fall back to the offline queue.
type Writer struct {
	cfg    Config
	clock  clock.Clock
	slug   string
	store  Store
	queue  *Queue
	online func() bool
	status *statusBox
	notify Notifier
	// saved is called after every successful write with the written scene.
	saved func(s scene.Scene)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *clock.Timer
	pending *scene.Scene
	closed  bool

	// writeMu serializes store writes so a drain and a debounced flush never
	// reorder each other.
	writeMu sync.Mutex

	drainMu  sync.Mutex
	draining bool
	redrain  bool
}

func newWriter(cfg Config, slug string, store Store, queue *Queue, online func() bool, status *statusBox, notify Notifier, saved func(scene.Scene)) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		cfg:    cfg,
		clock:  cfg.Clock,
		slug:   slug,
		store:  store,
		queue:  queue,
		online: online,
		status: status,
		notify: notify,
		saved:  saved,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule queues s to be written after the debounce window. Only the last
// call within a window is written. Offline, the scene goes straight to the
// retry queue instead.
func (w *Writer) Schedule(s scene.Scene) {
	snapshot := s.Clone()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if !w.online() {
		w.pending = nil
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()

		if err := w.queue.Enqueue(snapshot, 0); err != nil {
			glog.Infof("[writer]%s enqueue error = %s\n", w.slug, err)
		}
		w.status.update(func(st *Status) { st.Queued = w.queue.Len() })
		return
	}

	w.pending = &snapshot
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.cfg.DebounceWindow, w.flush)
	w.mu.Unlock()
}

// Pending reports whether a debounced write is waiting for its window.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

func (w *Writer) flush() {
	w.mu.Lock()
	if w.closed || w.pending == nil {
		w.mu.Unlock()
		return
	}
	s := *w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	if !w.online() {
		if err := w.queue.Enqueue(s, 0); err != nil {
			glog.Infof("[writer]%s enqueue error = %s\n", w.slug, err)
		}
		w.status.update(func(st *Status) { st.Queued = w.queue.Len() })
		return
	}

	w.status.update(func(st *Status) { st.Saving = true })
	err := w.writeWithRetry(w.ctx, s, true)
	w.status.update(func(st *Status) {
		st.Saving = false
		st.Queued = w.queue.Len()
	})
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	glog.Infof("[writer]%s save failed = %s\n", w.slug, err)
	msg := "Changes could not be saved yet; they will be retried."
	if errors.Is(err, ErrRejected) {
		msg = "The board refused these changes."
	}
	w.notify.Notify(Notice{Kind: NoticeSaveFailed, Message: msg, Err: err})
}

// writeWithRetry writes s, retrying with exponential backoff. When enqueue is
// set, the first failed attempt lands s in the offline queue so neither a
// restart nor a cancelled write loses it; later failures only bump that
// entry's attempt count, and a final success removes it again.
func (w *Writer) writeWithRetry(ctx context.Context, s scene.Scene, enqueue bool) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	var seq uint64
	queued := false
	keep := func(attempts int) {
		if !enqueue {
			return
		}
		if queued {
			if err := w.queue.markFailed(seq); err != nil {
				glog.Infof("[writer]%s queue update error = %s\n", w.slug, err)
			}
			return
		}
		var err error
		if seq, err = w.queue.push(s, attempts); err != nil {
			glog.Infof("[writer]%s enqueue error = %s\n", w.slug, err)
			return
		}
		queued = true
	}

	for attempt := 0; ; attempt++ {
		err := w.store.WriteBoard(ctx, w.slug, s)
		if err == nil {
			glog.V(2).Infof("[writer]%s saved %d elements\n", w.slug, len(s.Elements))
			if queued {
				if err := w.queue.removeThrough(seq); err != nil {
					glog.Infof("[writer]%s queue update error = %s\n", w.slug, err)
				}
			}
			w.saved(s)
			return nil
		}
		if errors.Is(err, ErrRejected) {
			// the scene will never be accepted; do not replay it
			if queued {
				if qerr := w.queue.remove(seq); qerr != nil {
					glog.Infof("[writer]%s queue update error = %s\n", w.slug, qerr)
				}
			}
			return err
		}
		keep(attempt + 1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if terminal(err) || attempt >= w.cfg.MaxRetries {
			return err
		}
		delay := w.cfg.BaseBackoff << attempt
		glog.V(2).Infof("[writer]%s retry %d in %s = %s\n", w.slug, attempt+1, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(delay):
		}
	}
}

// Drain writes the offline queue in order. Concurrent calls collapse into at
// most one extra pass after the running one.
func (w *Writer) Drain() (DrainResult, error) {
	w.drainMu.Lock()
	if w.draining {
		w.redrain = true
		w.drainMu.Unlock()
		return DrainResult{}, nil
	}
	w.draining = true
	w.drainMu.Unlock()

	var total DrainResult
	var err error
	for {
		var res DrainResult
		res, err = w.queue.Drain(w.ctx, func(ctx context.Context, s scene.Scene) error {
			return w.writeWithRetry(ctx, s, false)
		})
		total.Written += res.Written
		total.Failed += res.Failed
		if res.Last != nil {
			total.Last = res.Last
		}

		w.drainMu.Lock()
		again := w.redrain && err == nil
		w.redrain = false
		if !again {
			w.draining = false
		}
		w.drainMu.Unlock()
		if !again {
			break
		}
	}

	w.status.update(func(st *Status) { st.Queued = w.queue.Len() })
	return total, err
}

// Stop cancels the debounce timer and any in-flight write or backoff. The
// scene being written is queued by the cancelled write itself; a scene still
// waiting for its window is queued after it.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	w.cancel()
	// wait for the in-flight write so the queue keeps edit order
	w.writeMu.Lock()
	w.writeMu.Unlock()

	if pending != nil {
		if err := w.queue.Enqueue(*pending, 0); err != nil {
			glog.Infof("[writer]%s enqueue on stop error = %s\n", w.slug, err)
		}
	}
	w.status.update(func(st *Status) { st.Queued = w.queue.Len() })
}
