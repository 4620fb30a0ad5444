package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	ref    string
	mu     sync.Mutex
	frames []Frame
}

func (p *fakePeer) Ref() string { return p.ref }

func (p *fakePeer) Send(f Frame) error {
	p.mu.Lock()
	p.frames = append(p.frames, f)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) ofType(t string) []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Frame
	for _, f := range p.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

type recordingRelay struct {
	published []Frame
}

func (r *recordingRelay) Publish(_ context.Context, _ string, f Frame) error {
	r.published = append(r.published, f)
	return nil
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	hub := NewHub()
	relay := &recordingRelay{}
	hub.SetRelay(relay)
	a, b, c := &fakePeer{ref: "a"}, &fakePeer{ref: "b"}, &fakePeer{ref: "c"}
	hub.Join("board-1", a)
	hub.Join("board-1", b)
	hub.Join("board-2", c)

	require.Len(t, a.ofType(FrameSubscribed), 1)
	assert.Equal(t, "a", a.ofType(FrameSubscribed)[0].Ref)

	hub.Broadcast(context.Background(), "board-1", "a", "scene", json.RawMessage(`{"elements":[]}`))

	assert.Empty(t, a.ofType(FrameBroadcast), "no self echo")
	require.Len(t, b.ofType(FrameBroadcast), 1)
	assert.Equal(t, "a", b.ofType(FrameBroadcast)[0].From)
	assert.Empty(t, c.ofType(FrameBroadcast), "other channels untouched")
	assert.Len(t, relay.published, 1)
}

func TestHub_PresenceSyncOnTrackAndLeave(t *testing.T) {
	hub := NewHub()
	a, b := &fakePeer{ref: "a"}, &fakePeer{ref: "b"}
	hub.Join("board-1", a)
	hub.Join("board-1", b)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.Track("board-1", Presence{UserID: "u2", Ref: "b", JoinedAt: base.Add(time.Second)})
	hub.Track("board-1", Presence{UserID: "u1", Ref: "a", JoinedAt: base})

	syncs := b.ofType(FramePresenceSync)
	require.Len(t, syncs, 2)
	last := syncs[1].Presences
	require.Len(t, last, 2)
	assert.Equal(t, "u1", last[0].UserID, "ordered by join time")

	hub.Leave("board-1", "a")

	syncs = b.ofType(FramePresenceSync)
	require.Len(t, syncs, 3)
	assert.Equal(t, []Presence{{UserID: "u2", Ref: "b", JoinedAt: base.Add(time.Second)}}, syncs[2].Presences)
}

func TestHub_TrackIgnoresUnknownPeer(t *testing.T) {
	hub := NewHub()
	a := &fakePeer{ref: "a"}
	hub.Join("board-1", a)

	hub.Track("board-1", Presence{UserID: "u9", Ref: "ghost"})
	hub.Track("board-9", Presence{UserID: "u9", Ref: "a"})

	assert.Empty(t, a.ofType(FramePresenceSync))
	assert.Empty(t, hub.Presences("board-1"))
}

func TestHub_EmptyChannelIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Join("board-1", &fakePeer{ref: "a"})
	hub.Leave("board-1", "a")

	assert.Nil(t, hub.get("board-1"))
	hub.Leave("board-1", "a")
}

func TestHub_DeliverRemoteReachesAllLocalPeers(t *testing.T) {
	hub := NewHub()
	a := &fakePeer{ref: "a"}
	hub.Join("board-1", a)

	hub.DeliverRemote("board-1", Frame{Type: FrameBroadcast, Event: "scene", From: "remote-ref"})

	assert.Len(t, a.ofType(FrameBroadcast), 1)
}

func TestRedisRelay_AcceptDropsOwnMessages(t *testing.T) {
	self := NewRedisRelay(nil, "instance-a")
	other := NewRedisRelay(nil, "instance-b")
	f := Frame{Type: FrameBroadcast, Event: "scene", From: "a", Payload: json.RawMessage(`{}`)}

	data, err := self.encode("board-1", f)
	require.NoError(t, err)

	_, _, ok := self.accept(data)
	assert.False(t, ok)

	channelID, got, ok := other.accept(data)
	require.True(t, ok)
	assert.Equal(t, "board-1", channelID)
	assert.Equal(t, "scene", got.Event)

	_, _, ok = other.accept([]byte("not json"))
	assert.False(t, ok)
}

func TestHub_LateJoinerReceivesRegistry(t *testing.T) {
	hub := NewHub()
	a := &fakePeer{ref: "a"}
	hub.Join("board-1", a)
	hub.Track("board-1", Presence{UserID: "u1", Ref: "a"})

	b := &fakePeer{ref: "b"}
	hub.Join("board-1", b)

	syncs := b.ofType(FramePresenceSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, "u1", syncs[0].Presences[0].UserID)
	// пустой реестр не рассылается
	assert.Len(t, a.ofType(FramePresenceSync), 1)
}

func TestHub_JoinRacingLastLeaveStaysReachable(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 200; i++ {
		a, b := &fakePeer{ref: "a"}, &fakePeer{ref: "b"}
		hub.Join("board-1", a)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Leave("board-1", "a")
		}()
		go func() {
			defer wg.Done()
			hub.Join("board-1", b)
		}()
		wg.Wait()

		hub.Broadcast(context.Background(), "board-1", "c", "scene", json.RawMessage(`{}`))
		require.Len(t, b.ofType(FrameBroadcast), 1, "iteration %d: joined peer was left on a dropped channel", i)

		hub.Leave("board-1", "b")
		require.Nil(t, hub.get("board-1"))
	}
}
