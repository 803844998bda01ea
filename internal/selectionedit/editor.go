// ABOUTME: Streams an AI rewrite of a selected span of the Document with a delete-then-insert animation
// ABOUTME: One edit per Document; a failed or cancelled edit restores the original text unless another writer moved on

package selectionedit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/notify"
	"github.com/2389/coven-compose/internal/sse"
)

// DefaultDeleteInterval is the pause between deleted characters.
const DefaultDeleteInterval = 15 * time.Millisecond

// Event types of the selection-edit stream.
const (
	EventChunk    = "edit_chunk"
	EventComplete = "edit_complete"
	EventDone     = "done"
	EventError    = "error"
)

var (
	// ErrInvalidRange indicates the selection does not fit the Document.
	ErrInvalidRange = errors.New("invalid selection range")
	// ErrCancelled is returned by Wait for an edit superseded or cancelled by the caller.
	ErrCancelled = errors.New("selection edit cancelled")
)

// Request is the body of a selection-edit stream request. Offsets count runes.
type Request struct {
	FullContent     string `json:"full_content"`
	SelectedText    string `json:"selected_text"`
	EditInstruction string `json:"edit_instruction"`
	SelectionStart  int    `json:"selection_start"`
	SelectionEnd    int    `json:"selection_end"`
}

// Streamer runs one blocking selection-edit stream. It returns nil when the
// server ends the stream or ctx is cancelled.
type Streamer interface {
	StreamEdit(ctx context.Context, req Request, h sse.Handlers) error
}

// Result describes a completed edit. The new selection is [Start, End).
type Result struct {
	Start       int
	End         int
	Replacement string
}

// Editor runs selection edits against one Document.
type Editor struct {
	doc      *document.Document
	streamer Streamer
	notifier notify.Notifier
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *Edit
}

// NewEditor creates an Editor. A zero interval deletes without pausing.
// Pass nil logger for default.
func NewEditor(doc *document.Document, streamer Streamer, notifier notify.Notifier, interval time.Duration, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Editor{
		doc:      doc,
		streamer: streamer,
		notifier: notifier,
		interval: interval,
		logger:   logger.With("component", "selectionedit"),
	}
}

// Start begins rewriting runes [start, end) of the Document according to
// instruction. Any edit already running is cancelled and fully stopped
// before the new one captures its snapshot.
func (e *Editor) Start(ctx context.Context, start, end int, instruction string) (*Edit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.Cancel()
		<-e.current.done
		e.current = nil
	}

	original := e.doc.Content()
	runes := []rune(original)
	if start < 0 || end < start || end > len(runes) {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrInvalidRange, start, end, len(runes))
	}

	ctx, cancel := context.WithCancel(ctx)
	ed := &Edit{
		start:    start,
		before:   string(runes[:start]),
		selected: []rune(string(runes[start:end])),
		after:    string(runes[end:]),
		original: original,
		cancel:   cancel,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	req := Request{
		FullContent:     original,
		SelectedText:    string(ed.selected),
		EditInstruction: instruction,
		SelectionStart:  start,
		SelectionEnd:    end,
	}

	e.logger.Debug("selection edit started", "start", start, "end", end, "selected_runes", len(ed.selected))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.stream(ctx, ed, req)
	}()
	go func() {
		defer wg.Done()
		e.animate(ctx, ed)
	}()
	go func() {
		wg.Wait()
		cancel()
		close(ed.done)
	}()

	e.current = ed
	return ed, nil
}

// Cancel stops the running edit, if any, and waits for it to exit.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.Cancel()
		<-e.current.done
		e.current = nil
	}
}

// stream feeds server events into the edit's queue.
func (e *Editor) stream(ctx context.Context, ed *Edit, req Request) {
	h := sse.Handlers{
		OnEvent: func(eventType string, payload json.RawMessage) {
			ed.push(decodeEvent(eventType, payload))
		},
	}
	err := e.streamer.StreamEdit(ctx, req, h)
	if err != nil {
		ed.push(event{kind: EventError, err: err})
		return
	}
	// A stream that ends without edit_complete keeps what arrived
	ed.push(event{kind: EventDone})
}

// animate deletes the selection, then applies buffered and incoming chunks.
func (e *Editor) animate(ctx context.Context, ed *Edit) {
	limit := rate.Inf
	if e.interval > 0 {
		limit = rate.Every(e.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for kept := len(ed.selected) - 1; kept >= 0; kept-- {
		if err := ed.failure(); err != nil {
			e.fail(ed, err)
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			e.fail(ed, ErrCancelled)
			return
		}
		ed.lastVersion = e.doc.Set(document.WriterSelectionEdit, ed.before+string(ed.selected[:kept])+ed.after)
		ed.wrote = true
	}

	var replacement []rune
	for {
		for _, ev := range ed.drain() {
			switch ev.kind {
			case EventChunk:
				if ev.content == "" {
					continue
				}
				replacement = append(replacement, []rune(ev.content)...)
				ed.lastVersion = e.doc.Set(document.WriterSelectionEdit, ed.before+string(replacement)+ed.after)
				ed.wrote = true
			case EventComplete, EventDone:
				ed.finish(Result{
					Start:       ed.start,
					End:         ed.start + len(replacement),
					Replacement: string(replacement),
				}, nil)
				ed.cancel()
				e.logger.Debug("selection edit completed", "replacement_runes", len(replacement))
				return
			case EventError:
				e.fail(ed, ev.err)
				return
			}
		}

		select {
		case <-ctx.Done():
			e.fail(ed, ErrCancelled)
			return
		case <-ed.signal:
		}
	}
}

// fail halts the edit and puts the original text back if nobody else wrote
// to the Document since the edit's last write.
func (e *Editor) fail(ed *Edit, err error) {
	ed.cancel()

	if ed.wrote {
		if _, ok := e.doc.SetIfVersion(document.WriterRestore, ed.original, ed.lastVersion); ok {
			e.logger.Debug("selection edit rolled back")
		} else {
			e.logger.Warn("selection edit not rolled back, document changed by another writer",
				"edit_version", ed.lastVersion,
				"current_version", e.doc.Version())
		}
	}

	if !errors.Is(err, ErrCancelled) {
		e.logger.Warn("selection edit failed", "error", err)
		e.notifier.Notify(notify.Notification{
			Level:   notify.LevelError,
			Title:   "Edit failed",
			Message: err.Error(),
		})
	}
	ed.finish(Result{}, err)
}

// Edit is the handle of one running selection edit.
type Edit struct {
	start    int
	before   string
	selected []rune
	after    string
	original string
	cancel   context.CancelFunc

	// owned by the animate goroutine
	lastVersion uint64
	wrote       bool

	qmu     sync.Mutex
	queue   []event
	failErr error
	signal  chan struct{}

	result   Result
	err      error
	finished bool
	done     chan struct{}
}

// Cancel stops the edit. The original text is restored as on failure.
func (ed *Edit) Cancel() { ed.cancel() }

// Done is closed once every goroutine of the edit has exited.
func (ed *Edit) Done() <-chan struct{} { return ed.done }

// Wait blocks until the edit has finished and returns its outcome.
func (ed *Edit) Wait() (Result, error) {
	<-ed.done
	return ed.result, ed.err
}

func (ed *Edit) push(ev event) {
	ed.qmu.Lock()
	ed.queue = append(ed.queue, ev)
	if ev.kind == EventError && ed.failErr == nil {
		ed.failErr = ev.err
	}
	ed.qmu.Unlock()

	select {
	case ed.signal <- struct{}{}:
	default:
	}
}

func (ed *Edit) drain() []event {
	ed.qmu.Lock()
	defer ed.qmu.Unlock()
	q := ed.queue
	ed.queue = nil
	return q
}

// failure returns the first stream error seen, if any.
func (ed *Edit) failure() error {
	ed.qmu.Lock()
	defer ed.qmu.Unlock()
	return ed.failErr
}

func (ed *Edit) finish(r Result, err error) {
	if ed.finished {
		return
	}
	ed.finished = true
	ed.result = r
	ed.err = err
}

type event struct {
	kind    string
	content string
	err     error
}

func decodeEvent(eventType string, payload json.RawMessage) event {
	var body struct {
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(payload, &body)

	switch eventType {
	case EventChunk:
		return event{kind: EventChunk, content: body.Content}
	case EventComplete, EventDone:
		return event{kind: EventComplete}
	case EventError:
		msg := body.Error
		if msg == "" {
			msg = "edit stream reported an error"
		}
		return event{kind: EventError, err: errors.New(msg)}
	default:
		return event{kind: eventType}
	}
}
