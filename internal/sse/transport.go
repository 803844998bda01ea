// ABOUTME: HTTP streaming transport that feeds decoded SSE events to callbacks in arrival order
// ABOUTME: Transport keeps at most one live stream per owner; stale stream handles are no-ops

package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// Request describes one streaming HTTP exchange.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Handlers receives the callbacks of a stream. Any field may be nil.
type Handlers struct {
	// OnEvent is called for every well-formed event, strictly in arrival order.
	OnEvent func(eventType string, payload json.RawMessage)
	// OnError is called once for a connection-level failure.
	OnError func(err error)
	// OnClose is called after the stream has ended, whatever the reason.
	OnClose func()
}

// StatusError reports a non-2xx response to a stream request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream request failed with status %d: %s", e.StatusCode, e.Body)
}

// Run performs a single blocking stream exchange. Events are delivered to
// h.OnEvent on the calling goroutine. Malformed events are dropped. The
// returned error is nil for a clean end of stream or a cancelled context;
// otherwise it is the connection-level failure (also passed to h.OnError).
func Run(ctx context.Context, client *http.Client, req Request, h Handlers, logger *slog.Logger) error {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if h.OnClose != nil {
		defer h.OnClose()
	}

	err := run(ctx, client, req, h, logger)
	if err != nil && ctx.Err() != nil {
		// Cancellation is not a transport failure
		return nil
	}
	if err != nil && h.OnError != nil {
		h.OnError(err)
	}
	return err
}

func run(ctx context.Context, client *http.Client, req Request, h Handlers, logger *slog.Logger) error {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	dec := NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, ErrMalformedEvent) {
			logger.Debug("dropping malformed event", "type", ev.Type)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		if h.OnEvent != nil {
			h.OnEvent(ev.Type, ev.Data)
		}
	}
}

// readErrorBody extracts a short error message from a failed response.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(data))
}

// Stream is the handle of one stream opened through a Transport.
type Stream struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the handle's sequence number within its transport.
func (s *Stream) ID() uint64 { return s.id }

// Done is closed once the stream's goroutine has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Transport owns at most one active stream. Opening a new stream closes the
// previous one and invalidates its handle: callbacks still in flight for a
// stale handle are dropped.
type Transport struct {
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	current *Stream
}

// NewTransport creates a Transport using the given HTTP client. A nil client uses http.DefaultClient.
func NewTransport(client *http.Client, logger *slog.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		client: client,
		logger: logger.With("component", "sse"),
	}
}

// Open starts a stream in the background and returns its handle. Any stream
// previously opened through this transport is closed first.
func (t *Transport) Open(ctx context.Context, req Request, h Handlers) *Stream {
	streamCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.current != nil {
		t.current.cancel()
	}
	t.seq++
	s := &Stream{id: t.seq, cancel: cancel, done: make(chan struct{})}
	t.current = s
	t.mu.Unlock()

	t.logger.Debug("stream opened", "stream", s.id, "url", req.URL)

	guarded := Handlers{
		OnEvent: func(eventType string, payload json.RawMessage) {
			if h.OnEvent != nil && t.IsCurrent(s) {
				h.OnEvent(eventType, payload)
			}
		},
		OnError: func(err error) {
			if h.OnError != nil && t.IsCurrent(s) {
				h.OnError(err)
			}
		},
		OnClose: func() {
			if h.OnClose != nil && t.IsCurrent(s) {
				h.OnClose()
			}
		},
	}

	go func() {
		defer close(s.done)
		defer cancel()
		_ = Run(streamCtx, t.client, req, guarded, t.logger)
		t.logger.Debug("stream ended", "stream", s.id)
	}()

	return s
}

// IsCurrent reports whether s is the transport's live stream.
func (t *Transport) IsCurrent(s *Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return s != nil && t.current == s
}

// Close cancels the active stream, if any. It is safe to call repeatedly
// and from within a stream callback.
func (t *Transport) Close() {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()

	if s != nil {
		s.cancel()
		t.logger.Debug("stream closed", "stream", s.id)
	}
}
