// ABOUTME: Session controller: owns the turn log and the single in-flight request
// ABOUTME: Maps agent outcomes to assistant turns or a transient notice

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/oracle-chat/internal/notice"
)

// FailureNotice is shown when the agent call fails.
const FailureNotice = "Failed to connect to the agent. Please check your connection or try again later."

// DefaultGreeting seeds every new session.
const DefaultGreeting = "Hello! I'm the Oracle procurement and expenses assistant. " +
	"Ask me about purchase orders, invoices, suppliers or expense claims."

// ErrNoReply is recorded when a sender returns neither text nor an error.
var ErrNoReply = errors.New("agent returned an empty reply")

// Sender forwards user text to the agent and returns the display text.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
}

// Notifier is the notice surface the controller drives.
type Notifier interface {
	Show(msg string)
	Dismiss() bool
	Current() (string, bool)
}

// expiryNotifier is implemented by notifiers that clear themselves.
type expiryNotifier interface {
	OnExpire(func())
}

// State is a point-in-time copy of the session.
type State struct {
	Turns   []Turn `json:"turns"`
	Busy    bool   `json:"busy"`
	Notice  string `json:"notice,omitempty"`
	Version uint64 `json:"version"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGreeting replaces the seeded greeting. Blank text keeps the default.
func WithGreeting(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.greeting = text
		}
	}
}

// WithNotifier replaces the default five second notice.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notice = n
		}
	}
}

// WithNow replaces the timestamp source for new turns.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is the single owner of a chat session. All methods are safe for
// concurrent use.
type Controller struct {
	sender      Sender
	notice      Notifier
	broadcaster *Broadcaster
	logger      *slog.Logger
	now         func() time.Time
	greeting    string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	log         *Log
	outstanding bool
	closed      bool
	version     uint64
}

// New creates a controller seeded with the greeting turn.
func New(sender Sender, opts ...Option) *Controller {
	c := &Controller{
		sender:   sender,
		logger:   slog.Default(),
		now:      time.Now,
		greeting: DefaultGreeting,
		log:      NewLog(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notice == nil {
		c.notice = notice.New(notice.DefaultTimeout)
	}
	c.logger = c.logger.With("component", "conversation")
	c.broadcaster = NewBroadcaster(c.logger)
	c.baseCtx, c.cancel = context.WithCancel(context.Background())

	if en, ok := c.notice.(expiryNotifier); ok {
		en.OnExpire(c.noticeExpired)
	}

	// The greeting is non-blank and assistant-authored, so this cannot fail.
	_, _ = c.log.appendTurn(Turn{
		ID:        GreetingID,
		Role:      RoleAssistant,
		Content:   c.greeting,
		Timestamp: c.now(),
	})

	return c
}

// Submit starts a turn for text. It returns false without side effects when
// text is blank, a request is already outstanding, or the controller is
// closed. On success the returned channel closes once the agent call has
// settled and its outcome is committed.
func (c *Controller) Submit(text string) (<-chan struct{}, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	c.mu.Lock()
	if c.outstanding || c.closed {
		c.mu.Unlock()
		return nil, false
	}
	if _, err := c.log.Append(RoleUser, trimmed, c.now()); err != nil {
		c.mu.Unlock()
		c.logger.Error("appending user turn", "error", err)
		return nil, false
	}
	c.outstanding = true
	c.notice.Dismiss()
	c.publishLocked(ChangeSubmitted)
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("turn submitted", "length", len(trimmed))

	done := make(chan struct{})
	go c.run(trimmed, done)
	return done, true
}

func (c *Controller) run(text string, done chan<- struct{}) {
	defer c.wg.Done()
	defer close(done)

	start := time.Now()
	reply, err := c.sender.Send(c.baseCtx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrNoReply
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.outstanding = false
	if err != nil {
		c.logger.Error("agent call failed", "error", err, "duration", time.Since(start))
		c.notice.Show(FailureNotice)
		c.publishLocked(ChangeFailed)
		return
	}

	if _, appendErr := c.log.Append(RoleAssistant, reply, c.now()); appendErr != nil {
		c.logger.Error("appending assistant turn", "error", appendErr)
		c.notice.Show(FailureNotice)
		c.publishLocked(ChangeFailed)
		return
	}
	c.logger.Debug("agent replied", "length", len(reply), "duration", time.Since(start))
	c.publishLocked(ChangeReplied)
}

// Turns returns a copy of the transcript.
func (c *Controller) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Turns()
}

// Busy reports whether a request is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding
}

// Notice returns the visible notice, if any.
func (c *Controller) Notice() (string, bool) {
	return c.notice.Current()
}

// DismissNotice clears the notice immediately.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice.Dismiss() {
		c.publishLocked(ChangeNotice)
	}
}

// Snapshot returns a consistent copy of the whole session.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, _ := c.notice.Current()
	return State{
		Turns:   c.log.Turns(),
		Busy:    c.outstanding,
		Notice:  msg,
		Version: c.version,
	}
}

// Subscribe returns a channel of change events that closes when ctx is done
// or the controller is closed.
func (c *Controller) Subscribe(ctx context.Context) <-chan Change {
	ch, _ := c.broadcaster.Subscribe(ctx)
	return ch
}

// Close stops accepting submits, waits for an outstanding call to settle
// and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
	c.notice.Dismiss()
	c.broadcaster.Close()
	c.logger.Debug("controller closed")
}

func (c *Controller) noticeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.publishLocked(ChangeNotice)
}

func (c *Controller) publishLocked(kind ChangeKind) {
	c.version++
	c.broadcaster.Publish(Change{Kind: kind, Version: c.version, At: c.now()})
}
