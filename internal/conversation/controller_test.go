// ABOUTME: Tests for the session controller state machine
// ABOUTME: Uses a gated fake sender to observe the busy window deterministically

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/oracle-chat/internal/notice"
)

// gatedSender blocks each Send until the test releases it with a result.
type gatedSender struct {
	calls   atomic.Int32
	mu      sync.Mutex
	texts   []string
	results chan result
}

type result struct {
	text string
	err  error
}

func newGatedSender() *gatedSender {
	return &gatedSender{results: make(chan result, 1)}
}

func (s *gatedSender) Send(ctx context.Context, text string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	select {
	case r := <-s.results:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *gatedSender) reply(text string) { s.results <- result{text: text} }
func (s *gatedSender) fail(err error)    { s.results <- result{err: err} }

// echoSender answers immediately.
type echoSender struct{}

func (echoSender) Send(_ context.Context, text string) (string, error) {
	return "echo: " + text, nil
}

func newTestController(t *testing.T, sender Sender, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithNotifier(notice.New(time.Minute))}, opts...)
	c := New(sender, opts...)
	t.Cleanup(c.Close)
	return c
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent call did not settle")
	}
}

func TestNew_SeedsGreeting(t *testing.T) {
	c := newTestController(t, echoSender{})

	turns := c.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, GreetingID, turns[0].ID)
	assert.Equal(t, RoleAssistant, turns[0].Role)
	assert.Equal(t, DefaultGreeting, turns[0].Content)
	assert.False(t, c.Busy())

	_, ok := c.Notice()
	assert.False(t, ok)
}

func TestNew_CustomGreeting(t *testing.T) {
	c := newTestController(t, echoSender{}, WithGreeting("Welcome back."))
	assert.Equal(t, "Welcome back.", c.Turns()[0].Content)

	blank := newTestController(t, echoSender{}, WithGreeting("   "))
	assert.Equal(t, DefaultGreeting, blank.Turns()[0].Content)
}

func TestSubmit_AppendsUserTurnSynchronously(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, ok := c.Submit("  where is PO-1001?  ")
	require.True(t, ok)

	turns := c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.Equal(t, "where is PO-1001?", turns[1].Content)
	assert.NotEmpty(t, turns[1].ID)
	assert.True(t, c.Busy())

	sender.reply("It shipped on Monday.")
	waitDone(t, done)
}

func TestSubmit_SuccessAppendsAssistantTurn(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, ok := c.Submit("hi")
	require.True(t, ok)
	sender.reply("Hello")
	waitDone(t, done)

	turns := c.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, RoleAssistant, turns[2].Role)
	assert.Equal(t, "Hello", turns[2].Content)
	assert.False(t, c.Busy())
	_, noticeShown := c.Notice()
	assert.False(t, noticeShown)
}

func TestSubmit_FailureShowsNoticeAndAddsNoTurn(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, ok := c.Submit("hi")
	require.True(t, ok)
	sender.fail(errors.New("connection refused"))
	waitDone(t, done)

	turns := c.Turns()
	require.Len(t, turns, 2, "user turn stays, no assistant turn")
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.False(t, c.Busy())

	msg, shown := c.Notice()
	require.True(t, shown)
	assert.Equal(t, FailureNotice, msg)
}

func TestSubmit_EmptyReplyIsFailure(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, _ := c.Submit("hi")
	sender.reply("  ")
	waitDone(t, done)

	assert.Len(t, c.Turns(), 2)
	_, shown := c.Notice()
	assert.True(t, shown)
}

func TestSubmit_IgnoredWhileBusy(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, ok := c.Submit("first")
	require.True(t, ok)

	// Wait until the agent has been called so the busy window is real.
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, time.Millisecond)

	second, ok := c.Submit("second")
	assert.False(t, ok)
	assert.Nil(t, second)
	assert.Len(t, c.Turns(), 2)

	sender.reply("answer")
	waitDone(t, done)
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Equal(t, []string{"first"}, sender.texts)
}

func TestSubmit_BlankTextIgnored(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	for _, text := range []string{"", "   ", "\n\t"} {
		done, ok := c.Submit(text)
		assert.False(t, ok)
		assert.Nil(t, done)
	}
	assert.Len(t, c.Turns(), 1)
	assert.Zero(t, sender.calls.Load())
	assert.Equal(t, uint64(0), c.Snapshot().Version)
}

func TestSubmit_ClearsVisibleNotice(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, _ := c.Submit("one")
	sender.fail(errors.New("boom"))
	waitDone(t, done)
	_, shown := c.Notice()
	require.True(t, shown)

	done, ok := c.Submit("two")
	require.True(t, ok)
	_, shown = c.Notice()
	assert.False(t, shown, "a new submit clears the previous notice")

	sender.reply("ok")
	waitDone(t, done)
}

func TestSubmit_CyclesKeepIssueOrder(t *testing.T) {
	c := newTestController(t, echoSender{})

	const n = 5
	for i := range n {
		done, ok := c.Submit(fmt.Sprintf("q%d", i))
		require.True(t, ok)
		waitDone(t, done)
	}

	turns := c.Turns()
	require.Len(t, turns, 1+2*n)
	for i := range n {
		user := turns[1+2*i]
		reply := turns[2+2*i]
		assert.Equal(t, RoleUser, user.Role)
		assert.Equal(t, fmt.Sprintf("q%d", i), user.Content)
		assert.Equal(t, RoleAssistant, reply.Role)
		assert.Equal(t, fmt.Sprintf("echo: q%d", i), reply.Content)
	}

	seen := make(map[string]bool)
	for _, turn := range turns {
		assert.False(t, seen[turn.ID], "duplicate id %s", turn.ID)
		seen[turn.ID] = true
	}
}

func TestDismissNotice(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	done, _ := c.Submit("hi")
	sender.fail(errors.New("boom"))
	waitDone(t, done)

	before := c.Snapshot().Version
	c.DismissNotice()
	_, shown := c.Notice()
	assert.False(t, shown)
	assert.Equal(t, before+1, c.Snapshot().Version)

	// Nothing to dismiss: no new version.
	c.DismissNotice()
	assert.Equal(t, before+1, c.Snapshot().Version)
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := newTestController(t, echoSender{})

	snap := c.Snapshot()
	snap.Turns[0].Content = "tampered"

	assert.Equal(t, DefaultGreeting, c.Turns()[0].Content)
}

func TestSubscribe_ReceivesChangesInOrder(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender)

	changes := c.Subscribe(t.Context())

	done, _ := c.Submit("hi")
	sender.reply("hello")
	waitDone(t, done)

	var got []Change
	for len(got) < 2 {
		select {
		case ch := <-changes:
			got = append(got, ch)
		case <-time.After(time.Second):
			t.Fatalf("got %d changes, want 2", len(got))
		}
	}
	assert.Equal(t, ChangeSubmitted, got[0].Kind)
	assert.Equal(t, ChangeReplied, got[1].Kind)
	assert.Less(t, got[0].Version, got[1].Version)
	assert.Equal(t, got[1].Version, c.Snapshot().Version)
}

func TestNoticeExpiryPublishesChange(t *testing.T) {
	sender := newGatedSender()
	c := newTestController(t, sender, WithNotifier(notice.New(20*time.Millisecond)))

	changes := c.Subscribe(t.Context())

	done, _ := c.Submit("hi")
	sender.fail(errors.New("boom"))
	waitDone(t, done)

	var kinds []ChangeKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 3 {
		select {
		case ch := <-changes:
			kinds = append(kinds, ch.Kind)
		case <-timeout:
			t.Fatalf("got kinds %v", kinds)
		}
	}
	assert.Equal(t, []ChangeKind{ChangeSubmitted, ChangeFailed, ChangeNotice}, kinds)
	_, shown := c.Notice()
	assert.False(t, shown)
}

func TestClose_WaitsForOutstandingCall(t *testing.T) {
	sender := newGatedSender()
	c := New(sender, WithNotifier(notice.New(time.Minute)))

	changes := c.Subscribe(t.Context())
	done, ok := c.Submit("hi")
	require.True(t, ok)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the outstanding call settled")
	case <-time.After(50 * time.Millisecond):
	}

	sender.reply("late answer")
	waitDone(t, done)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Len(t, c.Turns(), 3)
	_, ok = c.Submit("after close")
	assert.False(t, ok)

	// Drain until the subscription channel is closed.
	for range changes {
	}
}
