// ABOUTME: Minimal fake webhook agent for local runs and E2E testing, echoes messages with markdown.
// ABOUTME: Usage: fake-webhook [-addr localhost:9090] [-mode echo|empty|status|slow|garbage]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/2389/oracle-chat/internal/agent"
)

// Response modes.
const (
	modeEcho    = "echo"    // envelope with a markdown echo
	modeEmpty   = "empty"   // envelope with no parts
	modeStatus  = "status"  // non-2xx status
	modeSlow    = "slow"    // echo after a delay
	modeGarbage = "garbage" // body that is not JSON
)

type options struct {
	mode   string
	delay  time.Duration
	status int
}

func main() {
	addr := flag.String("addr", "localhost:9090", "Listen address")
	mode := flag.String("mode", modeEcho, "Response mode: echo, empty, status, slow, garbage")
	delay := flag.Duration("delay", 3*time.Second, "Reply delay in slow mode")
	status := flag.Int("status", http.StatusBadGateway, "HTTP status in status mode")
	flag.Parse()

	opts := options{mode: *mode, delay: *delay, status: *status}
	if err := run(*addr, opts); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, opts options) error {
	handler, err := newHandler(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "fake webhook listening on http://%s (mode: %s)\n", addr, opts.mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func newHandler(opts options) (http.Handler, error) {
	switch opts.mode {
	case modeEcho, modeEmpty, modeStatus, modeSlow, modeGarbage:
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		message := r.URL.Query().Get("message")
		log.Printf("received message: %s", message)

		switch opts.mode {
		case modeStatus:
			http.Error(w, http.StatusText(opts.status), opts.status)
			return
		case modeGarbage:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
			return
		case modeEmpty:
			writeEnvelope(w, agent.Envelope{Content: &agent.Content{Parts: []agent.Part{}, Role: "model"}})
			return
		case modeSlow:
			select {
			case <-time.After(opts.delay):
			case <-r.Context().Done():
				return
			}
		}

		reply := echoReply(message)
		writeEnvelope(w, agent.Envelope{
			Content: &agent.Content{
				Parts: []agent.Part{{Text: &reply}},
				Role:  "model",
			},
			FinishReason: "STOP",
		})
	}), nil
}

func writeEnvelope(w http.ResponseWriter, env agent.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "table") || strings.Contains(lower, "list") {
		return "Here are the open **purchase orders**:\n\n" +
			"| PO | Supplier | Status |\n|---|---|---|\n" +
			"| PO-1042 | Acme Supplies | Approved |\n| PO-1043 | Globex | Pending |\n\n" +
			"- Invoices are matched nightly\n- See the [procurement policy](https://example.com/policy)\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
