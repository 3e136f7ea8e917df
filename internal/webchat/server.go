// ABOUTME: Web chat UI for the single oracle-chat session
// ABOUTME: Registers page, state, send, dismiss and event stream routes on a chi router

package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/dedupe"
	"github.com/2389/oracle-chat/internal/transcript"
)

const (
	// DefaultHeartbeat is the interval between SSE keepalive comments.
	DefaultHeartbeat = 30 * time.Second

	// maxMessageBytes caps the POST /api/messages body.
	maxMessageBytes = 64 << 10

	// idempotencyHeader carries the browser's per-message key.
	idempotencyHeader = "Idempotency-Key"
)

// Session is the part of the conversation controller the UI needs.
type Session interface {
	Submit(text string) (<-chan struct{}, bool)
	Snapshot() conversation.State
	DismissNotice()
	Subscribe(ctx context.Context) <-chan conversation.Change
}

// Config holds web chat settings
type Config struct {
	Title     string
	Subtitle  string
	Heartbeat time.Duration
}

// Server serves the chat page and its API.
type Server struct {
	session   Session
	config    Config
	html      *transcript.HTMLFormatter
	templates *template.Template
	static    http.Handler
	seen      *dedupe.Cache
	logger    *slog.Logger
}

// New parses the embedded templates and returns a Server. Pass nil logger
// for default.
func New(session Session, cfg Config, logger *slog.Logger) (*Server, error) {
	if session == nil {
		return nil, errors.New("webchat: session is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("opening static assets: %w", err)
	}

	return &Server{
		session:   session,
		config:    cfg,
		html:      transcript.NewHTMLFormatter(),
		templates: tmpl,
		static:    http.StripPrefix("/static/", noCache(http.FileServer(http.FS(assets)))),
		seen:      dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		logger:    logger.With("component", "webchat"),
	}, nil
}

// noCache makes browsers revalidate the unhashed embedded assets.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes mounts the chat routes on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/", s.handlePage)
	r.Handle("/static/*", s.static)
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Get("/transcript", s.handleTranscript)
		r.Post("/messages", s.handleSend)
		r.Delete("/notice", s.handleDismiss)
		r.Get("/events", s.handleEvents)
	})
}

// Handler returns a router serving only the chat routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:    s.config.Title,
		Subtitle: s.config.Subtitle,
		Session:  s.buildView(s.session.Snapshot()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "chat.html", data); err != nil {
		s.logger.Error("failed to render chat page", "error", err)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.buildView(s.session.Snapshot()))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	view := s.buildView(s.session.Snapshot())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Session-Version", fmt.Sprint(view.Version))
	if err := s.templates.ExecuteTemplate(w, "transcript", view); err != nil {
		s.logger.Error("failed to render transcript", "error", err)
	}
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Accepted  bool `json:"accepted"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)

	text, err := parseSendRequest(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.sendJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && s.seen.Seen(key) {
		s.logger.Debug("dropping retried message", "key", key)
		s.sendJSON(w, http.StatusOK, sendResponse{Accepted: false, Duplicate: true})
		return
	}

	if _, ok := s.session.Submit(text); !ok {
		// Blank text or a request already in flight. Not an error, and the
		// same key may be sent again.
		if key != "" {
			s.seen.Forget(key)
		}
		s.sendJSON(w, http.StatusOK, sendResponse{Accepted: false})
		return
	}
	s.sendJSON(w, http.StatusAccepted, sendResponse{Accepted: true})
}

// parseSendRequest reads the message from a JSON body or a form field.
func parseSendRequest(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return "", err
			}
			if errors.Is(err, io.EOF) {
				return "", errors.New("request body is empty")
			}
			return "", errors.New("invalid JSON body")
		}
		return req.Message, nil
	}

	if err := r.ParseForm(); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", err
		}
		return "", errors.New("invalid form body")
	}
	return r.PostFormValue("message"), nil
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.session.DismissNotice()
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams "state" events, one per session change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ctx := r.Context()
	changes := s.session.Subscribe(ctx)

	lastVersion, err := s.writeState(w, 0, true)
	if err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Error("streaming not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case _, ok := <-changes:
			if !ok {
				// Session closed, server shutting down.
				return
			}
			lastVersion, err = s.writeState(w, lastVersion, false)
			if err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeState writes the current snapshot as a state event unless it is not
// newer than last. It returns the version now known to the client.
func (s *Server) writeState(w io.Writer, last uint64, force bool) (uint64, error) {
	view := s.buildView(s.session.Snapshot())
	if !force && view.Version <= last {
		return last, nil
	}
	if err := s.writeSSEEvent(w, "state", view.Version, view); err != nil {
		return last, err
	}
	return view.Version, nil
}

func (s *Server) writeSSEEvent(w io.Writer, event string, id uint64, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, dataJSON)
	return err
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
