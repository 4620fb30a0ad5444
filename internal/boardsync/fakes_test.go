package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"whiteboard/internal/scene"

	"github.com/stretchr/testify/mock"
)

var errStoreDown = errors.New("store unavailable")

func rect(id string, x float64, version int64) scene.Element {
	return scene.Element{ID: id, Type: "rectangle", X: x, Y: 0, Width: 10, Height: 10, Version: version}
}

// fakeStore is an in-memory board record. failWrites makes the next n writes
// fail with errStoreDown; hold makes writes wait until their context ends,
// like a request aborted mid-flight.
type fakeStore struct {
	mu         sync.Mutex
	board      scene.Board
	readErr    error
	failWrites int
	writeErr   error
	hold       bool
	attempts   int
	reads      int
	writes     []scene.Scene
}

func newFakeStore(elements ...scene.Element) *fakeStore {
	return &fakeStore{board: scene.Board{ID: "board-1", Slug: "demo", Name: "Demo", Scene: scene.Scene{Elements: elements}}}
}

func (s *fakeStore) ReadBoard(ctx context.Context, slug string) (*scene.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	b := s.board
	b.Scene = s.board.Scene.Clone()
	return &b, nil
}

func (s *fakeStore) WriteBoard(ctx context.Context, slug string, sc scene.Scene) error {
	s.mu.Lock()
	s.attempts++
	if s.hold {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.failWrites > 0 {
		s.failWrites--
		return errStoreDown
	}
	s.writes = append(s.writes, sc.Clone())
	s.board.Scene = sc.Clone()
	s.board.Version++
	return nil
}

func (s *fakeStore) Writes() []scene.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scene.Scene(nil), s.writes...)
}

func (s *fakeStore) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeStore) setHold(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = hold
}

func (s *fakeStore) setElements(elements ...scene.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.Elements = elements
}

// fakeCanvas behaves like an editor that reports every scene it is given,
// programmatic or not, through its change handler.
type fakeCanvas struct {
	mu        sync.Mutex
	elements  []scene.Element
	viewState json.RawMessage
	onChange  func([]scene.Element, json.RawMessage)
	applied   int
}

func (c *fakeCanvas) Mount(initial scene.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elements = scene.CloneElements(initial.Elements)
	c.viewState = initial.ViewState
}

func (c *fakeCanvas) OnChange(fn func([]scene.Element, json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *fakeCanvas) ApplyScene(s scene.Scene) {
	c.mu.Lock()
	c.elements = scene.CloneElements(s.Elements)
	c.applied++
	fn, elements, vs := c.onChange, scene.CloneElements(c.elements), c.viewState
	c.mu.Unlock()
	if fn != nil {
		fn(elements, vs)
	}
}

func (c *fakeCanvas) ElementsIncludingTombstoned() []scene.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scene.CloneElements(c.elements)
}

// edit simulates the user changing the scene.
func (c *fakeCanvas) edit(viewState string, elements ...scene.Element) {
	c.mu.Lock()
	c.elements = scene.CloneElements(elements)
	if viewState != "" {
		c.viewState = json.RawMessage(viewState)
	}
	fn, vs := c.onChange, c.viewState
	c.mu.Unlock()
	fn(scene.CloneElements(elements), vs)
}

func (c *fakeCanvas) Elements() []scene.Element {
	return c.ElementsIncludingTombstoned()
}

func (c *fakeCanvas) Applied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

type sentMessage struct {
	event   string
	payload json.RawMessage
}

type fakeChannel struct {
	mu          sync.Mutex
	status      ChannelStatus
	sent        []sentMessage
	tracked     []Presence
	onBroadcast map[string]func(json.RawMessage)
	onPresence  func([]Presence)
	onStatus    func(ChannelStatus)
	left        bool
}

func newFakeChannel(status ChannelStatus) *fakeChannel {
	return &fakeChannel{status: status, onBroadcast: make(map[string]func(json.RawMessage))}
}

func (c *fakeChannel) Broadcast(ctx context.Context, event string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{event: event, payload: payload})
	return nil
}

func (c *fakeChannel) OnBroadcast(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBroadcast[event] = fn
}

func (c *fakeChannel) TrackPresence(ctx context.Context, p Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = append(c.tracked, p)
	return nil
}

func (c *fakeChannel) OnPresenceSync(fn func([]Presence)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = fn
}

func (c *fakeChannel) OnStatus(fn func(ChannelStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

func (c *fakeChannel) Status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeChannel) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

func (c *fakeChannel) setStatus(s ChannelStatus) {
	c.mu.Lock()
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeChannel) deliver(event string, payload json.RawMessage) {
	c.mu.Lock()
	fn := c.onBroadcast[event]
	c.mu.Unlock()
	fn(payload)
}

func (c *fakeChannel) syncPresence(presences ...Presence) {
	c.mu.Lock()
	fn := c.onPresence
	c.mu.Unlock()
	fn(presences)
}

func (c *fakeChannel) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeChannel) Tracked() []Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Presence(nil), c.tracked...)
}

func (c *fakeChannel) Left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// MockTransport records joins.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Join(ctx context.Context, boardID string) (Channel, error) {
	args := m.Called(ctx, boardID)
	if ch := args.Get(0); ch != nil {
		return ch.(Channel), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) Kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]NoticeKind, 0, len(n.notices))
	for _, notice := range n.notices {
		kinds = append(kinds, notice.Kind)
	}
	return kinds
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
