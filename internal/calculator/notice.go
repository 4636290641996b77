package calculator

import (
	"sync"
	"time"
)

// Notice holds one short-lived message. Showing a new message replaces the old one and restarts its timer.
type Notice struct {
	ttl time.Duration

	mu    sync.Mutex
	text  string
	timer *time.Timer
	gen   uint64
}

// NewNotice returns a Notice whose messages expire after ttl.
func NewNotice(ttl time.Duration) *Notice {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Notice{ttl: ttl}
}

// Show replaces the current message.
func (n *Notice) Show(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.text = text
	gen := n.gen
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(gen) })
}

// Current returns the visible message, if any.
func (n *Notice) Current() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text, n.text != ""
}

// Clear hides the current message immediately.
func (n *Notice) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.text = ""
}

func (n *Notice) stopLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
}

func (n *Notice) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return
	}
	n.text = ""
	n.timer = nil
}
