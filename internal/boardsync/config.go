package boardsync

import (
	"time"

	"github.com/benbjohnson/clock"

	"whiteboard/internal/scene"
)

// BroadcastEvent is the realtime event name scene updates travel under.
const BroadcastEvent = "scene-update"

// Config tunes one engine. Zero fields are filled from DefaultConfig.
type Config struct {
	// DebounceWindow is the quiet period after the last content change before
	// the scene is written to the store.
	DebounceWindow time.Duration
	// ThrottleWindow is the minimum spacing between two broadcasts.
	ThrottleWindow time.Duration
	// MaxRetries bounds the retries after a failed write; retry n waits
	// BaseBackoff << n. Zero means the default, negative disables retries.
	MaxRetries  int
	BaseBackoff time.Duration
	// MaxElements is the element cap applied at every boundary.
	MaxElements int
	// MaxQueueEntries bounds the offline queue; the oldest snapshots go first
	// since every entry is a full scene superseding its predecessors.
	MaxQueueEntries int

	Clock clock.Clock
}

func DefaultConfig() Config {
	return Config{
		DebounceWindow:  5 * time.Second,
		ThrottleWindow:  50 * time.Millisecond,
		MaxRetries:      3,
		BaseBackoff:     time.Second,
		MaxElements:     scene.DefaultMaxElements,
		MaxQueueEntries: 50,
		Clock:           clock.New(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.ThrottleWindow <= 0 {
		c.ThrottleWindow = d.ThrottleWindow
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxElements <= 0 {
		c.MaxElements = d.MaxElements
	}
	if c.MaxQueueEntries <= 0 {
		c.MaxQueueEntries = d.MaxQueueEntries
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}
