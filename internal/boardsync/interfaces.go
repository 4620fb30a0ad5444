package boardsync

import (
	"context"
	"encoding/json"
	"time"

	"whiteboard/internal/scene"
)

// Store is the durable board record.
type Store interface {
	ReadBoard(ctx context.Context, slug string) (*scene.Board, error)
	WriteBoard(ctx context.Context, slug string, s scene.Scene) error
}

// Identity is who this client is on the realtime channel.
type Identity struct {
	UserID string
	Label  string
}

// Presence is one entry of a channel's presence registry. Ref identifies the
// connection (one per tab), UserID the person behind it.
type Presence struct {
	UserID   string    `json:"user_id"`
	Label    string    `json:"label"`
	JoinedAt time.Time `json:"joined_at"`
	Ref      string    `json:"ref,omitempty"`
}

// Transport joins realtime channels.
type Transport interface {
	Join(ctx context.Context, boardID string) (Channel, error)
}

// Channel is one joined realtime channel. Implementations must not deliver a
// client's own broadcasts back to it.
type Channel interface {
	Broadcast(ctx context.Context, event string, payload json.RawMessage) error
	OnBroadcast(event string, fn func(payload json.RawMessage))
	TrackPresence(ctx context.Context, p Presence) error
	OnPresenceSync(fn func(presences []Presence))
	OnStatus(fn func(status ChannelStatus))
	Status() ChannelStatus
	Leave() error
}

// Canvas is the embedded drawing surface.
type Canvas interface {
	Mount(initial scene.Scene)
	OnChange(fn func(elements []scene.Element, viewState json.RawMessage))
	ApplyScene(s scene.Scene)
	ElementsIncludingTombstoned() []scene.Element
}

// Connectivity reports whether the client currently has network access.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}
