package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8 << 20
)

// Session is what the server knows about the connection's user.
type Session struct {
	// UserID пустой у анонимного зрителя публичной доски
	UserID   string
	CanWrite bool
}

type wsPeer struct {
	ref     string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *wsPeer) Ref() string { return p.ref }

func (p *wsPeer) Send(f Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(f)
}

func (p *wsPeer) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ServeConn runs one websocket connection on the channel until the peer goes away.
func ServeConn(ctx context.Context, hub *Hub, conn *websocket.Conn, channelID string, s Session) {
	peer := &wsPeer{ref: ulid.Make().String(), conn: conn}
	hub.Join(channelID, peer)

	done := make(chan struct{})
	defer func() {
		close(done)
		hub.Leave(channelID, peer.ref)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := peer.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Realtime] %s read error: %v", peer.ref, err)
			}
			return
		}

		switch f.Type {
		case FrameBroadcast:
			if !s.CanWrite {
				_ = peer.Send(Frame{Type: FrameError, Message: "read-only access"})
				continue
			}
			if f.Event == "" {
				_ = peer.Send(Frame{Type: FrameError, Message: "broadcast without event"})
				continue
			}
			hub.Broadcast(ctx, channelID, peer.ref, f.Event, f.Payload)
		case FrameTrack:
			if f.Presence == nil {
				_ = peer.Send(Frame{Type: FrameError, Message: "track without presence"})
				continue
			}
			p := *f.Presence
			p.Ref = peer.ref
			// личность берется из токена, а не от клиента
			p.UserID = s.UserID
			if p.JoinedAt.IsZero() {
				p.JoinedAt = time.Now().UTC()
			}
			hub.Track(channelID, p)
		case FramePing:
			_ = peer.Send(Frame{Type: FramePong})
		default:
			_ = peer.Send(Frame{Type: FrameError, Message: "unknown frame type"})
		}
	}
}
