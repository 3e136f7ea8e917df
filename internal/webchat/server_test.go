// ABOUTME: Tests for the web chat handlers using httptest
// ABOUTME: Drives a real controller with a fake sender through every route

package webchat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/notice"
)

// scriptedSender returns queued replies, blocking until one is available.
type scriptedSender struct {
	replies chan reply
}

type reply struct {
	text string
	err  error
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{replies: make(chan reply, 4)}
}

func (s *scriptedSender) Send(ctx context.Context, _ string) (string, error) {
	select {
	case r := <-s.replies:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fixture struct {
	server *Server
	ctrl   *conversation.Controller
	sender *scriptedSender
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sender := newScriptedSender()
	ctrl := conversation.New(sender,
		conversation.WithGreeting("Hello from **Oracle**."),
		conversation.WithNotifier(notice.New(time.Minute)),
	)
	t.Cleanup(ctrl.Close)

	srv, err := New(ctrl, Config{Title: "Oracle Agent", Subtitle: "Procurement & Expenses", Heartbeat: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	return &fixture{server: srv, ctrl: ctrl, sender: sender, router: srv.Handler()}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) submit(t *testing.T, text string) {
	t.Helper()
	done, ok := f.ctrl.Submit(text)
	require.True(t, ok)
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
}

func decodeSession(t *testing.T, body string) sessionView {
	t.Helper()
	var view sessionView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	return view
}

func TestNew_RequiresSession(t *testing.T) {
	_, err := New(nil, Config{}, nil)
	assert.Error(t, err)
}

func TestPage_RendersGreetingAndTitle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Oracle Agent</title>")
	assert.Contains(t, body, "Procurement &amp; Expenses")
	assert.Contains(t, body, "<strong>Oracle</strong>")
	assert.Contains(t, body, `id="entry-greeting"`)
	assert.Contains(t, body, "/static/chat.js")
}

func TestStatic_ServesEmbeddedAssets(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/static/chat.js", "/static/chat.css"} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Body.String(), path)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_ReturnsSnapshot(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	view := decodeSession(t, rec.Body.String())
	require.Len(t, view.Entries, 1)
	assert.Equal(t, conversation.GreetingID, view.Entries[0].ID)
	assert.Contains(t, string(view.Entries[0].HTML), "<strong>Oracle</strong>")
	assert.False(t, view.Busy)
}

func TestSend_JSONAcceptedThenBusy(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"message":"Where is PO-12?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":true}`, rec.Body.String())

	// A second submit while the first is in flight is ignored.
	req = httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"message":"again"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":false}`, rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	view := decodeSession(t, rec.Body.String())
	assert.True(t, view.Busy)
	require.Len(t, view.Entries, 3, "greeting, user turn, typing entry")
	assert.Equal(t, "Where is PO-12?", view.Entries[1].Content)
	assert.Equal(t, "typing", string(view.Entries[2].Kind))

	f.sender.replies <- reply{text: "Approved."}
}

func TestSend_FormBody(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"message": {"from a form"}}
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(t, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.sender.replies <- reply{text: "ok"}
}

func TestSend_BlankIsNotAnError(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"message":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":false}`, rec.Body.String())
	assert.Len(t, f.ctrl.Turns(), 1)
}

func TestSend_InvalidJSON(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"message":`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())
}

func TestSend_TooLarge(t *testing.T) {
	f := newFixture(t)

	big := `{"message":"` + strings.Repeat("x", maxMessageBytes+10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Len(t, f.ctrl.Turns(), 1)
}

func TestTranscript_PartialShowsTypingWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "hello <script>alert(1)</script>")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/transcript", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-kind="typing"`)
	assert.NotContains(t, body, "<script>")
	assert.Equal(t, "1", rec.Header().Get("X-Session-Version"))

	f.sender.replies <- reply{text: "hi"}
}

func TestDismissNotice(t *testing.T) {
	f := newFixture(t)

	done, ok := f.ctrl.Submit("hi")
	require.True(t, ok)
	f.sender.replies <- reply{err: errors.New("connection refused")}
	<-done

	_, shown := f.ctrl.Notice()
	require.True(t, shown)

	rec := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/notice", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, shown = f.ctrl.Notice()
	assert.False(t, shown)
}

func TestSession_IncludesNoticeAfterFailure(t *testing.T) {
	f := newFixture(t)

	done, _ := f.ctrl.Submit("hi")
	f.sender.replies <- reply{err: errors.New("boom")}
	<-done

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	view := decodeSession(t, rec.Body.String())
	assert.Equal(t, conversation.FailureNotice, view.Notice)
	assert.Len(t, view.Entries, 2)
}

// readEvent reads one SSE event, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEvents_StreamsStateChanges(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	assert.Equal(t, "state", event)
	initial := decodeSession(t, data)
	assert.Equal(t, uint64(0), initial.Version)

	done, ok := f.ctrl.Submit("hi")
	require.True(t, ok)

	_, data = readEvent(t, reader)
	submitted := decodeSession(t, data)
	assert.True(t, submitted.Busy)
	assert.Equal(t, uint64(1), submitted.Version)

	f.sender.replies <- reply{text: "Hello"}
	<-done

	_, data = readEvent(t, reader)
	replied := decodeSession(t, data)
	assert.False(t, replied.Busy)
	require.Len(t, replied.Entries, 3)
	assert.Equal(t, "Hello", replied.Entries[2].Content)
}

func TestEvents_WritesHeartbeats(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": heartbeat") {
			return
		}
	}
}

func postMessage(t *testing.T, f *fixture, text, key string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"message": text})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return f.do(t, req)
}

func TestSend_RetriedKeyIsDropped(t *testing.T) {
	f := newFixture(t)

	rec := postMessage(t, f, "Where is PO-12?", "key-1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.sender.replies <- reply{text: "Approved."}
	require.Eventually(t, func() bool { return len(f.ctrl.Turns()) == 3 }, 2*time.Second, 5*time.Millisecond)

	rec = postMessage(t, f, "Where is PO-12?", "key-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":false,"duplicate":true}`, rec.Body.String())
	assert.Len(t, f.ctrl.Turns(), 3, "retry must not append a second user turn")
}

func TestSend_BusyRejectionFreesKey(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusAccepted, postMessage(t, f, "first", "key-a").Code)

	rec := postMessage(t, f, "second", "key-b")
	assert.JSONEq(t, `{"accepted":false}`, rec.Body.String())

	f.sender.replies <- reply{text: "done"}
	require.Eventually(t, func() bool { return !f.ctrl.Busy() }, 2*time.Second, 5*time.Millisecond)

	rec = postMessage(t, f, "second", "key-b")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.sender.replies <- reply{text: "done again"}
}

func TestStatic_NoCacheHeader(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/static/chat.js", nil))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}
