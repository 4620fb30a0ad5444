package realtime

import (
	"encoding/json"
	"time"
)

// Frame types exchanged over the realtime websocket.
const (
	FrameBroadcast    = "broadcast"
	FrameTrack        = "track"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameSubscribed   = "subscribed"
	FramePresenceSync = "presence_sync"
	FrameError        = "error"
)

// Frame is one JSON message on the wire. Only the fields relevant to Type are set.
type Frame struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	From      string          `json:"from,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Presence  *Presence       `json:"presence,omitempty"`
	Presences []Presence      `json:"presences,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Presence is one connection's entry in a channel's presence registry.
type Presence struct {
	UserID   string    `json:"user_id"`
	Label    string    `json:"label"`
	JoinedAt time.Time `json:"joined_at"`
	Ref      string    `json:"ref"`
}
