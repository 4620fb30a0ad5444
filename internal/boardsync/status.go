package boardsync

import (
	"sync"
	"time"
)

// ChannelStatus is the realtime channel's subscription state.
type ChannelStatus int

const (
	ChannelIdle ChannelStatus = iota
	ChannelSubscribing
	ChannelSubscribed
	ChannelError
	ChannelTimedOut
	ChannelClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelIdle:
		return "idle"
	case ChannelSubscribing:
		return "subscribing"
	case ChannelSubscribed:
		return "subscribed"
	case ChannelError:
		return "error"
	case ChannelTimedOut:
		return "timed_out"
	case ChannelClosed:
		return "closed"
	}
	return "unknown"
}

// Status is the observable state of an engine, meant for indicators in the UI.
type Status struct {
	Saving      bool
	Dirty       bool
	Offline     bool
	Corrupted   bool
	Queued      int
	Channel     ChannelStatus
	LastSavedAt time.Time
	// LastSyncedAt is when the stored board was last re-read and merged.
	LastSyncedAt time.Time
}

type statusBox struct {
	mu   sync.Mutex
	cur  Status
	subs map[int]func(Status)
	next int
}

func newStatusBox() *statusBox {
	return &statusBox{subs: make(map[int]func(Status))}
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// update applies fn and notifies subscribers if anything changed.
func (b *statusBox) update(fn func(*Status)) {
	b.mu.Lock()
	prev := b.cur
	fn(&b.cur)
	now := b.cur
	subs := make([]func(Status), 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	if prev == now {
		return
	}
	for _, s := range subs {
		s(now)
	}
}

func (b *statusBox) subscribe(fn func(Status)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}
