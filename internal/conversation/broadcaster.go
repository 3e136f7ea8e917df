// ABOUTME: In-memory fan-out of session change events to every open view
// ABOUTME: Publishes never block; slow subscribers drop events and re-read state

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// ChangeKind says what triggered a change event.
type ChangeKind string

const (
	ChangeSubmitted ChangeKind = "submitted"
	ChangeReplied   ChangeKind = "replied"
	ChangeFailed    ChangeKind = "failed"
	ChangeNotice    ChangeKind = "notice"
)

// Change tells a subscriber that the session state moved to Version.
// It carries no state; subscribers call Snapshot.
type Change struct {
	Kind    ChangeKind
	Version uint64
	At      time.Time
}

// Broadcaster delivers Change events to subscribers. Every subscriber sees
// every change unless its buffer is full, in which case the event is dropped
// for that subscriber only.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Change
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is removed when ctx is cancelled. Subscribing to a closed
// broadcaster returns an already closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Change, string) {
	subID := uuid.NewString()
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends c to all subscribers without blocking.
func (b *Broadcaster) Publish(c Change) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- c:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"sub_id", id,
				"version", c.Version)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}

	b.logger.Debug("broadcaster closed")
}
