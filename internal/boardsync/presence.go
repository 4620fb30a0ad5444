package boardsync

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// PresenceTracker holds who is looking at the board, one entry per user no
// matter how many tabs they have open. It is rebuilt from the channel's
// registry on every sync; nothing is persisted.
type PresenceTracker struct {
	mu     sync.RWMutex
	online []Presence
	subs   []func([]Presence)
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{}
}

// Sync replaces the tracked set with the registry, collapsed by user. The
// earliest join time of a user's connections is kept.
func (t *PresenceTracker) Sync(registry []Presence) {
	byUser := lo.GroupBy(registry, func(p Presence) string { return p.UserID })

	online := make([]Presence, 0, len(byUser))
	for userID, entries := range byUser {
		if userID == "" {
			continue
		}
		first := lo.MinBy(entries, func(a, b Presence) bool { return a.JoinedAt.Before(b.JoinedAt) })
		online = append(online, Presence{UserID: userID, Label: first.Label, JoinedAt: first.JoinedAt})
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].JoinedAt.Equal(online[j].JoinedAt) {
			return online[i].UserID < online[j].UserID
		}
		return online[i].JoinedAt.Before(online[j].JoinedAt)
	})

	t.mu.Lock()
	t.online = online
	subs := make([]func([]Presence), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// OnlineUsers returns the current set. Order carries no meaning.
func (t *PresenceTracker) OnlineUsers() []Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Presence(nil), t.online...)
}

// OnChange registers fn to run after every sync.
func (t *PresenceTracker) OnChange(fn func([]Presence)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

func (t *PresenceTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = nil
}
