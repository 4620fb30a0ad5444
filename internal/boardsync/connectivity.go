package boardsync

import "sync"

// ManualConnectivity is a Connectivity whose state is set by its owner, e.g.
// from the realtime channel status or an OS network notification.
type ManualConnectivity struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{online: online, subs: make(map[int]func(bool))}
}

func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Set changes the state and notifies subscribers on a transition.
func (c *ManualConnectivity) Set(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

func (c *ManualConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}
