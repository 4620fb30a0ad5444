// Package filecanvas is a boardsync.Canvas backed by a JSON scene file, so a
// board can be edited with any text editor or script.
package filecanvas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/samber/lo"

	"whiteboard/internal/boardsync"
	"whiteboard/internal/scene"
)

// Canvas mirrors the engine's scene to a file and feeds hand edits back.
// Only live elements are written; deletions made in the file become
// tombstones kept in memory so they merge like any other edit.
type Canvas struct {
	path string

	mu        sync.Mutex
	elements  []scene.Element
	viewState json.RawMessage
	lastHash  [sha256.Size]byte
	onChange  func(elements []scene.Element, viewState json.RawMessage)
}

var _ boardsync.Canvas = (*Canvas)(nil)

func New(path string) *Canvas {
	return &Canvas{path: path}
}

func (c *Canvas) Path() string { return c.path }

func (c *Canvas) Mount(initial scene.Scene) {
	c.mu.Lock()
	c.elements = scene.CloneElements(initial.Elements)
	c.viewState = append(json.RawMessage(nil), initial.ViewState...)
	err := c.writeLocked()
	c.mu.Unlock()
	if err != nil {
		glog.Infof("[canvas]write %s error = %s\n", c.path, err)
	}
}

func (c *Canvas) OnChange(fn func(elements []scene.Element, viewState json.RawMessage)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// ApplyScene replaces the scene and notifies the change handler, as an
// interactive editor would after a programmatic update.
func (c *Canvas) ApplyScene(s scene.Scene) {
	c.mu.Lock()
	c.elements = scene.CloneElements(s.Elements)
	if s.ViewState != nil {
		c.viewState = append(json.RawMessage(nil), s.ViewState...)
	}
	err := c.writeLocked()
	fn, elements, viewState := c.onChange, scene.CloneElements(c.elements), c.viewState
	c.mu.Unlock()

	if err != nil {
		glog.Infof("[canvas]write %s error = %s\n", c.path, err)
	}
	if fn != nil {
		fn(elements, viewState)
	}
}

func (c *Canvas) ElementsIncludingTombstoned() []scene.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scene.CloneElements(c.elements)
}

// Watch feeds edits made to the file into the change handler until ctx is done.
func (c *Canvas) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// каталог, а не файл: редакторы часто заменяют файл целиком
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return err
	}
	target := filepath.Clean(c.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := c.Reload(); err != nil {
					glog.Infof("[canvas]reload %s error = %s\n", c.path, err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			glog.Infof("[canvas]watch %s error = %s\n", c.path, err)
		}
	}
}

// Reload reads the file and reports a change if it differs from what was
// last written or read. Content this canvas wrote itself is ignored.
func (c *Canvas) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(data)

	c.mu.Lock()
	if hash == c.lastHash {
		c.mu.Unlock()
		return nil
	}
	var edited scene.Scene
	if err := json.Unmarshal(data, &edited); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("parse: %w", err)
	}
	if err := scene.Validate(edited, 0); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastHash = hash
	c.elements = reconcile(c.elements, edited.Elements)
	if len(edited.ViewState) > 0 {
		c.viewState = edited.ViewState
	}
	fn, elements, viewState := c.onChange, scene.CloneElements(c.elements), c.viewState
	c.mu.Unlock()

	glog.V(2).Infof("[canvas]%s edited, %d elements\n", c.path, len(elements))
	if fn != nil {
		fn(elements, viewState)
	}
	return nil
}

// reconcile turns a hand-edited element list into versioned elements: changed
// elements get a version above the previous one, removed ones become tombstones.
func reconcile(prev, edited []scene.Element) []scene.Element {
	byID := lo.KeyBy(prev, func(e scene.Element) string { return e.ID })
	out := make([]scene.Element, 0, len(edited)+len(prev))

	for _, e := range edited {
		p, ok := byID[e.ID]
		switch {
		case !ok:
			if e.Version <= 0 {
				e.Version = 1
			}
		case p.IsDeleted && !e.IsDeleted, scene.ElementChanged(e, p):
			if e.Version <= p.Version {
				e.Version = p.Version + 1
			}
		default:
			e.Version = lo.Max([]int64{e.Version, p.Version})
		}
		out = append(out, e)
		delete(byID, e.ID)
	}

	for _, p := range prev {
		if _, gone := byID[p.ID]; !gone {
			continue
		}
		if !p.IsDeleted {
			p = p.Clone()
			p.IsDeleted = true
			p.Version++
		}
		out = append(out, p)
	}
	return out
}

func (c *Canvas) writeLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scene.Scene{Elements: scene.Live(c.elements), ViewState: c.viewState}); err != nil {
		return err
	}
	data := buf.Bytes()
	c.lastHash = sha256.Sum256(data)

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".scene-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}
