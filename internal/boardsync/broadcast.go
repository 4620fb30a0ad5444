package boardsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"whiteboard/internal/scene"
)

// BroadcastPayload is what peers receive for a scene update. The view state
// is always an empty object: zoom, scroll and tool stay with their owner.
type BroadcastPayload struct {
	Elements  []scene.Element `json:"elements"`
	ViewState json.RawMessage `json:"viewState"`
}

var emptyViewState = json.RawMessage(`{}`)

func encodeBroadcast(elements []scene.Element) (json.RawMessage, error) {
	return json.Marshal(BroadcastPayload{Elements: elements, ViewState: emptyViewState})
}

// Broadcaster throttles scene broadcasts to one per window. A send inside the
// window is buffered and the latest buffered payload goes out once the window
// has elapsed.
type Broadcaster struct {
	clock   clock.Clock
	window  time.Duration
	channel Channel
	event   string

	mu       sync.Mutex
	lastSent time.Time
	sentOnce bool
	pending  []scene.Element
	timer    *clock.Timer
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newBroadcaster(clk clock.Clock, window time.Duration, channel Channel, event string) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{clock: clk, window: window, channel: channel, event: event, ctx: ctx, cancel: cancel}
}

// Send broadcasts elements now, or buffers them until the throttle window
// allows the next broadcast.
func (b *Broadcaster) Send(elements []scene.Element) {
	snapshot := scene.CloneElements(elements)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	now := b.clock.Now()
	elapsed := now.Sub(b.lastSent)
	if b.timer == nil && (!b.sentOnce || elapsed >= b.window) {
		b.lastSent = now
		b.sentOnce = true
		b.mu.Unlock()
		b.publish(snapshot)
		return
	}
	b.pending = snapshot
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.window-elapsed, b.flush)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) flush() {
	b.mu.Lock()
	b.timer = nil
	if b.closed || b.pending == nil {
		b.mu.Unlock()
		return
	}
	elements := b.pending
	b.pending = nil
	b.lastSent = b.clock.Now()
	b.mu.Unlock()

	b.publish(elements)
}

func (b *Broadcaster) publish(elements []scene.Element) {
	payload, err := encodeBroadcast(elements)
	if err != nil {
		glog.Infof("[broadcast]encode error = %s\n", err)
		return
	}
	if err := b.channel.Broadcast(b.ctx, b.event, payload); err != nil {
		// not retried: peers catch up from the store on their next reconnect
		glog.Infof("[broadcast]%s error = %s\n", b.event, err)
		return
	}
	glog.V(2).Infof("[broadcast]%s %d elements\n", b.event, len(elements))
}

// Stop drops any buffered payload and clears the throttle timer.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.cancel()
}
