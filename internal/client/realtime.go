package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"whiteboard/internal/boardsync"
	"whiteboard/internal/realtime"
)

// ErrNotSubscribed is returned by sends while the channel has no live connection.
var ErrNotSubscribed = errors.New("realtime channel not subscribed")

type RealtimeSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	SendBufferSize   int
}

func DefaultRealtimeSettings() RealtimeSettings {
	return RealtimeSettings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout:      20 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		SendBufferSize:   16,
	}
}

// Realtime joins board channels over the backend's websocket endpoint.
type Realtime struct {
	wsURL    string
	token    string
	settings RealtimeSettings
}

var _ boardsync.Transport = (*Realtime)(nil)

// NewRealtime takes the API base URL (http or https) and a session token.
func NewRealtime(apiURL, token string, settings RealtimeSettings) *Realtime {
	u := strings.TrimRight(apiURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &Realtime{wsURL: u, token: token, settings: settings}
}

// Join starts connecting in the background and returns at once. Progress is
// reported through the channel's status callbacks; the connection is
// re-established after every drop until Leave.
func (r *Realtime) Join(ctx context.Context, boardID string) (boardsync.Channel, error) {
	if boardID == "" {
		return nil, fmt.Errorf("join: empty board id")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &wsChannel{
		url:       r.wsURL + "/realtime/" + boardID,
		token:     r.token,
		settings:  r.settings,
		ctx:       runCtx,
		cancel:    cancel,
		send:      make(chan realtime.Frame, r.settings.SendBufferSize),
		handlers:  make(map[string][]func(json.RawMessage)),
		status:    boardsync.ChannelSubscribing,
		done:      make(chan struct{}),
	}
	go ch.run()
	return ch, nil
}

type wsChannel struct {
	url      string
	token    string
	settings RealtimeSettings

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	send   chan realtime.Frame

	mu         sync.Mutex
	status     boardsync.ChannelStatus
	connected  bool
	left       bool
	handlers   map[string][]func(json.RawMessage)
	presenceFn []func([]boardsync.Presence)
	statusFn   []func(boardsync.ChannelStatus)
}

func (c *wsChannel) Broadcast(ctx context.Context, event string, payload json.RawMessage) error {
	return c.enqueue(ctx, realtime.Frame{Type: realtime.FrameBroadcast, Event: event, Payload: payload})
}

func (c *wsChannel) OnBroadcast(event string, fn func(payload json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], fn)
	c.mu.Unlock()
}

// TrackPresence announces this client on the current connection. A new
// connection starts without presence; the caller tracks again once the
// channel reports Subscribed.
func (c *wsChannel) TrackPresence(ctx context.Context, p boardsync.Presence) error {
	rp := realtime.Presence{UserID: p.UserID, Label: p.Label, JoinedAt: p.JoinedAt}
	return c.enqueue(ctx, realtime.Frame{Type: realtime.FrameTrack, Presence: &rp})
}

func (c *wsChannel) OnPresenceSync(fn func(presences []boardsync.Presence)) {
	c.mu.Lock()
	c.presenceFn = append(c.presenceFn, fn)
	c.mu.Unlock()
}

func (c *wsChannel) OnStatus(fn func(status boardsync.ChannelStatus)) {
	c.mu.Lock()
	c.statusFn = append(c.statusFn, fn)
	c.mu.Unlock()
}

func (c *wsChannel) Status() boardsync.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Leave closes the connection and stops reconnecting. No callbacks fire afterwards.
func (c *wsChannel) Leave() error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

func (c *wsChannel) enqueue(ctx context.Context, f realtime.Frame) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotSubscribed
	}
	select {
	case c.send <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrNotSubscribed
	}
}

func (c *wsChannel) setStatus(s boardsync.ChannelStatus) {
	c.mu.Lock()
	if c.left || c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	fns := append([]func(boardsync.ChannelStatus){}, c.statusFn...)
	c.mu.Unlock()

	glog.V(2).Infof("[rt]%s status = %s\n", c.url, s)
	for _, fn := range fns {
		fn(s)
	}
}

func (c *wsChannel) run() {
	defer close(c.done)

	for {
		c.setStatus(boardsync.ChannelSubscribing)
		ws, err := c.connect()
		if err != nil {
			glog.Infof("[rt]connect %s error = %s\n", c.url, err)
			c.setStatus(failureStatus(err))
		} else {
			c.setStatus(c.serve(ws))
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

// connect dials and waits for the subscription ack.
func (c *wsChannel) connect() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := dialer.DialContext(c.ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake status %d", err, resp.StatusCode)
		}
		return nil, err
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.settings.HandshakeTimeout))
	var ack realtime.Frame
	if err := ws.ReadJSON(&ack); err != nil {
		ws.Close()
		return nil, err
	}
	if ack.Type != realtime.FrameSubscribed {
		ws.Close()
		return nil, fmt.Errorf("expected %s, got %s: %s", realtime.FrameSubscribed, ack.Type, ack.Message)
	}
	glog.V(2).Infof("[rt]subscribed %s ref = %s\n", c.url, ack.Ref)
	return ws, nil
}

// serve pumps frames until the connection drops and reports how it ended.
func (c *wsChannel) serve(ws *websocket.Conn) boardsync.ChannelStatus {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	// кадры, отправленные до подключения, устарели
	c.drainSend()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	c.setStatus(boardsync.ChannelSubscribed)

	go func() {
		defer handleCancel()
		for {
			select {
			case <-handleCtx.Done():
				return
			case f := <-c.send:
				_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteJSON(f); err != nil {
					glog.Infof("[rt]%s-> error = %s\n", c.url, err)
					return
				}
				glog.V(2).Infof("[rt]%s-> %s\n", c.url, f.Type)
			case <-time.After(c.settings.PingTimeout):
				_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteJSON(realtime.Frame{Type: realtime.FramePing}); err != nil {
					return
				}
			}
		}
	}()

	result := make(chan boardsync.ChannelStatus, 1)
	go func() {
		defer handleCancel()
		for {
			_ = ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
			var f realtime.Frame
			if err := ws.ReadJSON(&f); err != nil {
				if handleCtx.Err() == nil {
					glog.Infof("[rt]%s<- error = %s\n", c.url, err)
				}
				result <- closeStatus(err)
				return
			}
			c.dispatch(f)
		}
	}()

	<-handleCtx.Done()
	// разблокировать чтение
	ws.Close()
	select {
	case s := <-result:
		return s
	case <-time.After(c.settings.WriteTimeout):
		return boardsync.ChannelClosed
	}
}

func (c *wsChannel) dispatch(f realtime.Frame) {
	switch f.Type {
	case realtime.FrameBroadcast:
		c.mu.Lock()
		fns := append([]func(json.RawMessage){}, c.handlers[f.Event]...)
		c.mu.Unlock()
		glog.V(2).Infof("[rt]%s<- broadcast %s from %s\n", c.url, f.Event, f.From)
		for _, fn := range fns {
			fn(f.Payload)
		}
	case realtime.FramePresenceSync:
		presences := make([]boardsync.Presence, len(f.Presences))
		for i, p := range f.Presences {
			presences[i] = boardsync.Presence{UserID: p.UserID, Label: p.Label, JoinedAt: p.JoinedAt, Ref: p.Ref}
		}
		c.mu.Lock()
		fns := append([]func([]boardsync.Presence){}, c.presenceFn...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(presences)
		}
	case realtime.FrameError:
		glog.Infof("[rt]%s<- server error = %s\n", c.url, f.Message)
	case realtime.FramePong:
	default:
		glog.V(2).Infof("[rt]%s<- other = %s\n", c.url, f.Type)
	}
}

func (c *wsChannel) drainSend() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func failureStatus(err error) boardsync.ChannelStatus {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return boardsync.ChannelTimedOut
	}
	return boardsync.ChannelError
}

func closeStatus(err error) boardsync.ChannelStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return boardsync.ChannelTimedOut
	}
	return boardsync.ChannelClosed
}
