package boardsync

import "sync"

// reconnectController watches the channel status and decides when a full
// re-fetch of the board is due: on the first subscription after mount, and
// once per disconnect -> subscribed transition.
type reconnectController struct {
	mu           sync.Mutex
	current      ChannelStatus
	subscribed   bool // reached Subscribed at least once
	disconnected bool // dropped since the last Subscribed
}

// observe records s. entered is set when the channel has just become
// Subscribed (a repeated Subscribed report is not a new subscription); resync
// tells whether a full re-fetch should run.
func (c *reconnectController) observe(s ChannelStatus) (entered, resync bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current
	c.current = s

	switch s {
	case ChannelSubscribed:
		if prev == ChannelSubscribed {
			return false, false
		}
		if !c.subscribed {
			c.subscribed = true
			c.disconnected = false
			return true, true
		}
		if c.disconnected {
			c.disconnected = false
			return true, true
		}
		return true, false
	case ChannelClosed, ChannelTimedOut, ChannelError:
		if c.subscribed {
			c.disconnected = true
		}
	}
	return false, false
}
