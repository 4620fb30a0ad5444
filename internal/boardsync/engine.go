package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/samber/lo"

	"whiteboard/internal/localstore"
	"whiteboard/internal/scene"
)

// Deps are the collaborators of an engine. Transport, Connectivity and
// Notifier are optional: without a transport the board is edited alone,
// without connectivity the client is assumed online.
type Deps struct {
	Store        Store
	Transport    Transport
	Canvas       Canvas
	Local        localstore.Store
	Connectivity Connectivity
	Notifier     Notifier
	Identity     Identity
}

// Engine keeps one mounted board in sync: it persists local edits, replays
// the offline queue, broadcasts to peers and merges what they send back.
// All per-view state lives here; an engine mounts one board at a time.
type Engine struct {
	cfg      Config
	deps     Deps
	status   *statusBox
	presence *PresenceTracker

	// applying is set while the engine itself pushes a scene into the canvas,
	// so the change handler ignores the echo.
	applying atomic.Bool

	mu          sync.Mutex
	mounted     bool
	slug        string
	boardID     string
	baseline    []scene.Element
	lastSeen    []scene.Element
	viewState   json.RawMessage
	corrupted   bool
	queue       *Queue
	writer      *Writer
	broadcaster *Broadcaster
	channel     Channel
	reconnect   *reconnectController
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{}
	}
	if deps.Local == nil {
		deps.Local = localstore.NewMemory()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		status:   newStatusBox(),
		presence: NewPresenceTracker(),
	}
}

// Mount opens the board: it loads and validates the stored scene, restores
// the offline queue, hands the scene to the canvas and joins the realtime
// channel. An unauthorized or missing board is returned as an error; a scene
// that fails validation mounts empty with a NoticeCorrupted.
func (e *Engine) Mount(ctx context.Context, slug string) error {
	e.mu.Lock()
	if e.mounted {
		e.mu.Unlock()
		return ErrAlreadyMounted
	}
	e.mu.Unlock()

	board, err := e.deps.Store.ReadBoard(ctx, slug)
	if err != nil {
		glog.Infof("[engine]%s read error = %s\n", slug, err)
		if terminal(err) {
			return err
		}
		return fmt.Errorf("read board %s: %w", slug, err)
	}

	remote := board.Scene.Clone()
	invalid := scene.Validate(remote, e.cfg.MaxElements)
	corrupted := invalid != nil
	if corrupted {
		glog.Infof("[engine]%s stored scene rejected = %s\n", slug, invalid)
		remote = scene.Empty()
	}

	queue := NewQueue(e.deps.Local, slug, e.cfg.MaxQueueEntries, e.cfg.Clock)
	if err := queue.Restore(); err != nil {
		glog.Infof("[engine]%s %s\n", slug, err)
	}

	// Unsent edits from an earlier session are shown on top of the stored
	// scene; the drain below writes them.
	initial := remote
	if entries := queue.Entries(); len(entries) > 0 && !corrupted {
		last := entries[len(entries)-1].Scene
		initial = scene.Scene{
			Elements:  scene.Merge(last.Elements, remote.Elements),
			ViewState: remote.ViewState,
		}
	}

	e.mu.Lock()
	if e.mounted {
		e.mu.Unlock()
		return ErrAlreadyMounted
	}
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.mounted = true
	e.slug = slug
	e.boardID = board.ID
	e.baseline = scene.CloneElements(remote.Elements)
	e.lastSeen = scene.CloneElements(initial.Elements)
	e.viewState = append(json.RawMessage(nil), initial.ViewState...)
	e.corrupted = corrupted
	e.queue = queue
	e.writer = newWriter(e.cfg, slug, e.deps.Store, queue, e.online, e.status, e.deps.Notifier, e.onSaved)
	e.reconnect = &reconnectController{}
	e.mu.Unlock()

	e.status.update(func(st *Status) {
		*st = Status{
			Dirty:     scene.ContentChanged(initial.Elements, remote.Elements),
			Offline:   !e.online(),
			Corrupted: corrupted,
			Queued:    queue.Len(),
			Channel:   ChannelIdle,
		}
	})
	if corrupted {
		e.deps.Notifier.Notify(Notice{
			Kind:    NoticeCorrupted,
			Message: "The saved board could not be read. An empty board was opened instead.",
			Err:     invalid,
		})
	}

	e.applying.Store(true)
	e.deps.Canvas.Mount(initial)
	e.applying.Store(false)
	e.deps.Canvas.OnChange(e.HandleChange)

	if e.deps.Connectivity != nil {
		unsubscribe := e.deps.Connectivity.Subscribe(e.handleConnectivity)
		e.mu.Lock()
		e.unsubscribe = unsubscribe
		e.mu.Unlock()
	}

	if queue.Len() > 0 && e.online() {
		e.async(e.drain)
	}

	e.join(ctx)
	glog.V(2).Infof("[engine]%s mounted %d elements\n", slug, len(initial.Elements))
	return nil
}

func (e *Engine) join(ctx context.Context) {
	if e.deps.Transport == nil || e.boardID == "" {
		return
	}
	ch, err := e.deps.Transport.Join(ctx, e.boardID)
	if err != nil {
		glog.Infof("[engine]%s join error = %s\n", e.slug, err)
		e.deps.Notifier.Notify(Notice{
			Kind:    NoticeRealtimeUnavailable,
			Message: "Live collaboration is unavailable. Changes are still saved.",
			Err:     err,
		})
		return
	}

	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		_ = ch.Leave()
		return
	}
	e.channel = ch
	e.broadcaster = newBroadcaster(e.cfg.Clock, e.cfg.ThrottleWindow, ch, BroadcastEvent)
	e.mu.Unlock()

	ch.OnBroadcast(BroadcastEvent, e.handleRemote)
	ch.OnPresenceSync(e.presence.Sync)
	ch.OnStatus(e.handleChannelStatus)
	e.handleChannelStatus(ch.Status())
}

// Unmount stops every timer, moves an unwritten debounced scene into the
// offline queue and leaves the channel. Safe to call more than once.
func (e *Engine) Unmount() {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	e.mounted = false
	writer, bc, ch, unsubscribe := e.writer, e.broadcaster, e.channel, e.unsubscribe
	e.broadcaster, e.channel, e.unsubscribe = nil, nil, nil
	e.cancel()
	e.mu.Unlock()

	writer.Stop()
	if bc != nil {
		bc.Stop()
	}
	if ch != nil {
		if err := ch.Leave(); err != nil {
			glog.Infof("[engine]%s leave error = %s\n", e.slug, err)
		}
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	e.wg.Wait()

	e.presence.reset()
	e.status.update(func(st *Status) {
		st.Saving = false
		st.Channel = ChannelIdle
		st.Queued = e.queue.Len()
	})
	glog.V(2).Infof("[engine]%s unmounted\n", e.slug)
}

// HandleChange is the canvas change handler. Content changes are scheduled
// for persistence and broadcast; view-state-only changes are remembered but
// neither saved nor broadcast.
func (e *Engine) HandleChange(elements []scene.Element, viewState json.RawMessage) {
	if e.applying.Load() {
		return
	}

	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	e.viewState = append(json.RawMessage(nil), viewState...)
	if !scene.ContentChanged(elements, e.lastSeen) {
		e.mu.Unlock()
		return
	}
	e.lastSeen = scene.CloneElements(elements)
	dirty := scene.ContentChanged(elements, e.baseline)
	corrupted := e.corrupted
	writer, bc := e.writer, e.broadcaster
	e.mu.Unlock()

	e.status.update(func(st *Status) { st.Dirty = dirty })
	if corrupted {
		// the stored scene is kept until the user starts fresh
		return
	}
	if len(elements) > e.cfg.MaxElements {
		e.deps.Notifier.Notify(Notice{
			Kind:    NoticeSaveFailed,
			Message: "The board has too many elements to be saved.",
			Err:     scene.ErrTooManyElements,
		})
		return
	}

	writer.Schedule(scene.Scene{Elements: elements, ViewState: viewState})
	if bc != nil {
		bc.Send(elements)
	}
}

func (e *Engine) handleRemote(payload json.RawMessage) {
	var msg BroadcastPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		glog.Infof("[engine]%s bad broadcast = %s\n", e.slug, err)
		e.deps.Notifier.Notify(Notice{Kind: NoticeSyncFailed, Message: "A change from a collaborator could not be read.", Err: err})
		return
	}
	if err := scene.Validate(scene.Scene{Elements: msg.Elements}, e.cfg.MaxElements); err != nil {
		glog.Infof("[engine]%s rejected broadcast = %s\n", e.slug, err)
		e.deps.Notifier.Notify(Notice{Kind: NoticeSyncFailed, Message: "A change from a collaborator was rejected.", Err: err})
		return
	}
	e.applyMerge(msg.Elements, false)
}

func (e *Engine) handleChannelStatus(s ChannelStatus) {
	e.mu.Lock()
	if !e.mounted || e.channel == nil {
		e.mu.Unlock()
		return
	}
	ch := e.channel
	entered, resync := e.reconnect.observe(s)
	e.mu.Unlock()

	glog.V(2).Infof("[engine]%s channel %s\n", e.slug, s)
	e.status.update(func(st *Status) { st.Channel = s })

	// every new connection starts without presence; only the engine tracks it
	if entered {
		self := Presence{UserID: e.deps.Identity.UserID, Label: e.deps.Identity.Label, JoinedAt: e.cfg.Clock.Now()}
		e.async(func() {
			if err := ch.TrackPresence(e.ctx, self); err != nil {
				glog.Infof("[engine]%s track error = %s\n", e.slug, err)
			}
		})
	}
	if resync {
		e.async(func() {
			if err := e.Resync(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.deps.Notifier.Notify(Notice{Kind: NoticeSyncFailed, Message: "Could not catch up with the saved board.", Err: err})
			}
		})
	}
}

func (e *Engine) handleConnectivity(online bool) {
	e.status.update(func(st *Status) { st.Offline = !online })
	if online {
		e.async(e.drain)
	}
}

// Resync re-reads the stored board and merges it into the canvas.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrNotMounted
	}
	slug := e.slug
	e.mu.Unlock()

	board, err := e.deps.Store.ReadBoard(ctx, slug)
	if err != nil {
		glog.Infof("[engine]%s resync read error = %s\n", slug, err)
		return fmt.Errorf("resync %s: %w", slug, err)
	}
	if err := scene.Validate(board.Scene, e.cfg.MaxElements); err != nil {
		glog.Infof("[engine]%s resync rejected = %s\n", slug, err)
		return fmt.Errorf("resync %s: %w", slug, err)
	}
	e.applyMerge(board.Elements, true)

	now := e.cfg.Clock.Now()
	e.status.update(func(st *Status) { st.LastSyncedAt = now })
	return nil
}

// applyMerge merges remote into the canvas content. The board stays dirty
// only when local content that was never saved survived the merge.
func (e *Engine) applyMerge(remote []scene.Element, fromStore bool) {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	local := e.deps.Canvas.ElementsIncludingTombstoned()
	res := scene.MergeDetailed(local, remote)
	changed := scene.ContentChanged(res.Elements, local) || scene.VersionsDiffer(res.Elements, local)
	e.baseline = rebase(res.Elements, res.Ahead, e.baseline)
	unsaved := scene.ContentChanged(res.Elements, e.baseline)
	e.lastSeen = scene.CloneElements(res.Elements)
	merged := scene.Scene{Elements: res.Elements, ViewState: append(json.RawMessage(nil), e.viewState...)}
	writer, corrupted := e.writer, e.corrupted
	e.mu.Unlock()

	if changed {
		e.apply(merged)
	}
	// A pending write still carries the pre-merge scene and would overwrite
	// what was just merged in.
	schedule := !corrupted && ((fromStore && res.LocalAhead > 0) || writer.Pending())
	e.status.update(func(st *Status) { st.Dirty = unsaved || schedule })
	if schedule {
		writer.Schedule(merged)
	}
	glog.V(2).Infof("[engine]%s merged store=%t local_ahead=%d remote_wins=%d remote_added=%d\n",
		e.slug, fromStore, res.LocalAhead, res.RemoteWins, res.RemoteAdded)
}

// rebase derives the new last-saved baseline from a merge result: remote
// content counts as saved, while local elements the remote side lacks keep
// their previously saved form (or none), so they stay dirty only when they
// were never saved.
func rebase(merged []scene.Element, ahead []string, saved []scene.Element) []scene.Element {
	if len(ahead) == 0 {
		return scene.CloneElements(merged)
	}
	local := lo.Associate(ahead, func(id string) (string, struct{}) { return id, struct{}{} })
	prev := lo.KeyBy(saved, func(el scene.Element) string { return el.ID })

	out := make([]scene.Element, 0, len(merged))
	for _, el := range merged {
		if _, ok := local[el.ID]; !ok {
			out = append(out, el.Clone())
			continue
		}
		if p, ok := prev[el.ID]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (e *Engine) apply(s scene.Scene) {
	e.applying.Store(true)
	defer e.applying.Store(false)
	e.deps.Canvas.ApplyScene(s)
}

func (e *Engine) drain() {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	writer := e.writer
	e.mu.Unlock()

	res, err := writer.Drain()
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Infof("[engine]%s drain error = %s\n", e.slug, err)
		e.deps.Notifier.Notify(Notice{Kind: NoticeSaveFailed, Message: "Offline changes could not be saved.", Err: err})
	}
	if res.Written == 0 || res.Last == nil {
		return
	}

	// The queue holds older snapshots; make sure the store ends on what the
	// canvas shows now.
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	current := scene.Scene{Elements: scene.CloneElements(e.lastSeen), ViewState: append(json.RawMessage(nil), e.viewState...)}
	corrupted := e.corrupted
	e.mu.Unlock()
	if !corrupted && !writer.Pending() && scene.ContentChanged(current.Elements, res.Last.Elements) {
		writer.Schedule(current)
	}
}

func (e *Engine) onSaved(s scene.Scene) {
	e.mu.Lock()
	e.baseline = scene.CloneElements(s.Elements)
	dirty := scene.ContentChanged(e.lastSeen, e.baseline)
	e.mu.Unlock()

	now := e.cfg.Clock.Now()
	e.status.update(func(st *Status) {
		st.Dirty = dirty
		st.LastSavedAt = now
	})
}

// StartFresh discards a scene that failed validation: the canvas is cleared
// and the empty scene is written over the stored one.
func (e *Engine) StartFresh() error {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrNotMounted
	}
	if !e.corrupted {
		e.mu.Unlock()
		return nil
	}
	e.corrupted = false
	fresh := scene.Empty()
	e.lastSeen = scene.CloneElements(fresh.Elements)
	e.viewState = nil
	writer := e.writer
	e.mu.Unlock()

	e.apply(fresh)
	e.status.update(func(st *Status) {
		st.Corrupted = false
		st.Dirty = true
	})
	writer.Schedule(fresh)
	return nil
}

func (e *Engine) Status() Status {
	return e.status.get()
}

// OnStatus registers fn for status changes and returns its unsubscribe func.
func (e *Engine) OnStatus(fn func(Status)) func() {
	return e.status.subscribe(fn)
}

// OnlineUsers returns the collaborators currently on the board, one entry per
// user.
func (e *Engine) OnlineUsers() []Presence {
	return e.presence.OnlineUsers()
}

func (e *Engine) OnPresence(fn func([]Presence)) {
	e.presence.OnChange(fn)
}

func (e *Engine) online() bool {
	if e.deps.Connectivity == nil {
		return true
	}
	return e.deps.Connectivity.Online()
}

// async runs fn on a goroutine Unmount waits for. Nothing starts once the
// engine is unmounted.
func (e *Engine) async(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mounted {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}
