package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/samber/lo"

	"whiteboard/internal/localstore"
	"whiteboard/internal/scene"
)

// QueueEntry is one unsent scene write.
type QueueEntry struct {
	Seq        uint64      `json:"seq"`
	Scene      scene.Scene `json:"scene"`
	Attempts   int         `json:"attempts"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// QueueKey is the local storage key of a board's retry queue.
func QueueKey(slug string) string {
	return "boardsync:queue:" + slug
}

// Queue is the offline retry queue: a FIFO of full-scene writes persisted in
// tab-local storage so it survives a restart of the client.
type Queue struct {
	mu      sync.Mutex
	store   localstore.Store
	key     string
	max     int
	clock   clock.Clock
	entries []QueueEntry
	nextSeq uint64
}

func NewQueue(store localstore.Store, slug string, max int, clk clock.Clock) *Queue {
	if clk == nil {
		clk = clock.New()
	}
	return &Queue{store: store, key: QueueKey(slug), max: max, clock: clk}
}

// Restore loads the persisted entries. A corrupt record is dropped rather than
// blocking the board from opening.
func (q *Queue) Restore() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := q.store.Get(q.key)
	if errors.Is(err, localstore.ErrNotFound) {
		q.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	var entries []QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		glog.Infof("[queue]%s dropping unreadable queue = %s\n", q.key, err)
		q.entries = nil
		return q.persistLocked()
	}
	q.entries = entries
	for _, e := range entries {
		if e.Seq >= q.nextSeq {
			q.nextSeq = e.Seq + 1
		}
	}
	return nil
}

// Enqueue appends a snapshot of s.
func (q *Queue) Enqueue(s scene.Scene, attempts int) error {
	_, err := q.push(s, attempts)
	return err
}

// push appends a snapshot of s and returns its sequence number.
func (q *Queue) push(s scene.Scene, attempts int) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.nextSeq
	q.entries = append(q.entries, QueueEntry{
		Seq:        seq,
		Scene:      s.Clone(),
		Attempts:   attempts,
		EnqueuedAt: q.clock.Now(),
	})
	q.nextSeq++
	if q.max > 0 && len(q.entries) > q.max {
		q.entries = append([]QueueEntry(nil), q.entries[len(q.entries)-q.max:]...)
	}
	return seq, q.persistLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queue in enqueue order.
func (q *Queue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// removeThrough drops every entry up to and including seq. Each entry is a
// full scene, so a written entry supersedes everything queued before it.
func (q *Queue) removeThrough(seq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := 0
	for i < len(q.entries) && q.entries[i].Seq <= seq {
		i++
	}
	q.entries = append([]QueueEntry(nil), q.entries[i:]...)
	return q.persistLocked()
}

// remove drops the entry with the given seq only.
func (q *Queue) remove(seq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = lo.Reject(q.entries, func(e QueueEntry, _ int) bool { return e.Seq == seq })
	return q.persistLocked()
}

func (q *Queue) markFailed(seq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].Seq == seq {
			q.entries[i].Attempts++
		}
	}
	return q.persistLocked()
}

func (q *Queue) persistLocked() error {
	if len(q.entries) == 0 {
		return q.store.Delete(q.key)
	}
	data, err := json.Marshal(q.entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	return q.store.Set(q.key, data)
}

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Written int
	Failed  int
	// Last is the most recent scene written during the pass.
	Last *scene.Scene
}

// Drain writes the queued entries strictly in order. A failing entry stays
// queued and the pass moves on; a later successful entry supersedes it.
func (q *Queue) Drain(ctx context.Context, write func(ctx context.Context, s scene.Scene) error) (DrainResult, error) {
	var res DrainResult
	for _, entry := range q.Entries() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := write(ctx, entry.Scene); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			glog.Infof("[queue]%s entry %d failed = %s\n", q.key, entry.Seq, err)
			if errors.Is(err, ErrRejected) {
				if err := q.remove(entry.Seq); err != nil {
					return res, err
				}
				continue
			}
			if err := q.markFailed(entry.Seq); err != nil {
				return res, err
			}
			if terminal(err) {
				return res, err
			}
			continue
		}
		res.Written++
		written := entry.Scene
		res.Last = &written
		if err := q.removeThrough(entry.Seq); err != nil {
			return res, err
		}
		glog.V(2).Infof("[queue]%s wrote entry %d\n", q.key, entry.Seq)
	}
	return res, nil
}
