package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Peer is one connection joined to a channel.
type Peer interface {
	Ref() string
	Send(f Frame) error
}

// Relay carries broadcasts to hubs running on other server instances.
type Relay interface {
	Publish(ctx context.Context, channelID string, f Frame) error
}

// Hub keeps one channel per board and fans frames out to its peers.
type Hub struct {
	channels map[string]*channel
	mu       sync.RWMutex
	relay    Relay
}

type channel struct {
	id        string
	peers     map[string]Peer
	presences map[string]Presence
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]*channel)}
}

// SetRelay подключает межсерверную пересылку (Redis)
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// attach adds the peer to the channel, creating it if needed. The peer is
// inserted under h.mu so a concurrent Leave cannot drop the channel in between.
func (h *Hub) attach(id string, p Peer) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[id]
	if !ok {
		ch = &channel{id: id, peers: make(map[string]Peer), presences: make(map[string]Presence)}
		h.channels[id] = ch
		log.Printf("[Hub] channel %s created", id)
	}
	ch.mu.Lock()
	ch.peers[p.Ref()] = p
	count := len(ch.peers)
	ch.mu.Unlock()
	return count
}

func (h *Hub) get(id string) *channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[id]
}

// Join adds a peer to the channel and confirms the subscription to it.
func (h *Hub) Join(channelID string, p Peer) {
	count := h.attach(channelID, p)

	log.Printf("[Hub] %s joined %s (%d connected)", p.Ref(), channelID, count)
	if err := p.Send(Frame{Type: FrameSubscribed, Ref: p.Ref()}); err != nil {
		log.Printf("[Hub] subscribe ack to %s failed: %v", p.Ref(), err)
		return
	}
	// новый участник сразу видит, кто уже на доске
	if presences := h.Presences(channelID); len(presences) > 0 {
		if err := p.Send(Frame{Type: FramePresenceSync, Presences: presences}); err != nil {
			log.Printf("[Hub] presence sync to %s failed: %v", p.Ref(), err)
		}
	}
}

// Leave removes the peer and its presence. Empty channels are dropped.
func (h *Hub) Leave(channelID, ref string) {
	ch := h.get(channelID)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	delete(ch.peers, ref)
	_, tracked := ch.presences[ref]
	delete(ch.presences, ref)
	empty := len(ch.peers) == 0
	ch.mu.Unlock()

	log.Printf("[Hub] %s left %s", ref, channelID)
	if empty {
		h.mu.Lock()
		// канал мог снова заполниться между проверками; attach вставляет под h.mu
		ch.mu.RLock()
		if len(ch.peers) == 0 && h.channels[channelID] == ch {
			delete(h.channels, channelID)
		}
		ch.mu.RUnlock()
		h.mu.Unlock()
		return
	}
	if tracked {
		h.syncPresence(ch)
	}
}

// Track records the peer's presence and sends the full registry to every member.
func (h *Hub) Track(channelID string, p Presence) {
	ch := h.get(channelID)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	if _, ok := ch.peers[p.Ref]; !ok {
		ch.mu.Unlock()
		return
	}
	ch.presences[p.Ref] = p
	ch.mu.Unlock()

	h.syncPresence(ch)
}

// Broadcast delivers the event to every other peer of the channel and to the relay.
func (h *Hub) Broadcast(ctx context.Context, channelID, fromRef, event string, payload json.RawMessage) {
	f := Frame{Type: FrameBroadcast, Event: event, Payload: payload, From: fromRef}
	h.deliver(channelID, f)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		if err := relay.Publish(ctx, channelID, f); err != nil {
			log.Printf("[Hub] relay publish for %s failed: %v", channelID, err)
		}
	}
}

// DeliverRemote hands a broadcast relayed from another instance to local peers.
func (h *Hub) DeliverRemote(channelID string, f Frame) {
	h.deliver(channelID, f)
}

// Presences returns the channel's registry ordered by join time.
func (h *Hub) Presences(channelID string) []Presence {
	ch := h.get(channelID)
	if ch == nil {
		return nil
	}
	return ch.snapshot()
}

func (h *Hub) deliver(channelID string, f Frame) {
	ch := h.get(channelID)
	if ch == nil {
		return
	}
	ch.mu.RLock()
	targets := lo.Values(lo.OmitByKeys(ch.peers, []string{f.From}))
	ch.mu.RUnlock()

	for _, p := range targets {
		if err := p.Send(f); err != nil {
			log.Printf("[Hub] send to %s failed: %v", p.Ref(), err)
		}
	}
}

func (h *Hub) syncPresence(ch *channel) {
	presences := ch.snapshot()
	ch.mu.RLock()
	targets := lo.Values(ch.peers)
	ch.mu.RUnlock()

	f := Frame{Type: FramePresenceSync, Presences: presences}
	for _, p := range targets {
		if err := p.Send(f); err != nil {
			log.Printf("[Hub] presence sync to %s failed: %v", p.Ref(), err)
		}
	}
}

func (ch *channel) snapshot() []Presence {
	ch.mu.RLock()
	out := lo.Values(ch.presences)
	ch.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}
