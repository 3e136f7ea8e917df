// ABOUTME: Self-expiring user-facing notice with a cancellable timer
// ABOUTME: A generation counter keeps stale timers from clearing newer messages

package notice

import (
	"sync"
	"time"
)

// DefaultTimeout is how long a notice stays visible when no timeout is given.
const DefaultTimeout = 5 * time.Second

// Timer is the handle returned by Clock.AfterFunc. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Clock schedules expiry callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Notice.
type Option func(*Notice)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(n *Notice) {
		if c != nil {
			n.clock = c
		}
	}
}

// Notice holds at most one message at a time. It is safe for concurrent use.
type Notice struct {
	mu       sync.Mutex
	clock    Clock
	timeout  time.Duration
	message  string
	visible  bool
	gen      uint64
	timer    Timer
	onExpire func()
}

// New returns an empty Notice. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Notice {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	n := &Notice{
		clock:   realClock{},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Timeout returns the display duration.
func (n *Notice) Timeout() time.Duration {
	return n.timeout
}

// OnExpire registers f to run after a message clears itself on timeout.
// It is not called for Dismiss or for a message replaced by Show. f runs on
// the timer goroutine without the notice lock held.
func (n *Notice) OnExpire(f func()) {
	n.mu.Lock()
	n.onExpire = f
	n.mu.Unlock()
}

// Show makes msg visible immediately and schedules it to clear after the
// timeout. Any earlier message and its timer are replaced.
func (n *Notice) Show(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopTimerLocked()
	n.gen++
	n.message = msg
	n.visible = true

	gen := n.gen
	n.timer = n.clock.AfterFunc(n.timeout, func() { n.expire(gen) })
}

// Dismiss clears the current message and cancels its timer. It reports
// whether a message was visible.
func (n *Notice) Dismiss() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopTimerLocked()
	if !n.visible {
		return false
	}
	n.gen++
	n.message = ""
	n.visible = false
	return true
}

// Current returns the visible message, if any.
func (n *Notice) Current() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.message, n.visible
}

func (n *Notice) stopTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Notice) expire(gen uint64) {
	var callback func()

	n.mu.Lock()
	if gen != n.gen || !n.visible {
		n.mu.Unlock()
		return
	}
	n.message = ""
	n.visible = false
	n.timer = nil
	callback = n.onExpire
	n.mu.Unlock()

	if callback != nil {
		callback()
	}
}
