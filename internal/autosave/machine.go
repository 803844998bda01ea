// ABOUTME: Draft autosave state machine (saved, unsaved, saving, error) for one open Document
// ABOUTME: Single-flight saves; sends images only when they changed; never retries on its own

package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/notify"
)

// Status is the persistence state of the draft.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusUnsaved Status = "unsaved"
	StatusSaving  Status = "saving"
	StatusError   Status = "error"
)

// ErrSaveInFlight is returned when a save is requested while another is running.
var ErrSaveInFlight = errors.New("save already in flight")

// Request carries the fields of one draft save.
type Request struct {
	PostID  string
	Content string
	// ImagesChanged gates Files and ExistingImages; when false neither is sent.
	ImagesChanged  bool
	Files          []document.Attachment
	ExistingImages []string
}

// Result is the server's answer to a save.
type Result struct {
	ID     string   `json:"id,omitempty"`
	Images []string `json:"images"`
}

// Saver persists a draft.
type Saver interface {
	SaveDraft(ctx context.Context, req Request) (*Result, error)
}

// Transition is one recorded status change.
type Transition struct {
	From Status
	To   Status
	At   time.Time
}

// Machine drives autosave for a single Document.
type Machine struct {
	mu          sync.Mutex
	status      Status
	transitions []Transition
	listeners   []func(Transition)

	doc      *document.Document
	saver    Saver
	notifier notify.Notifier
	inflight *semaphore.Weighted
	logger   *slog.Logger
}

// New creates a machine in the saved state and subscribes it to doc's
// local edits. Pass nil logger for default.
func New(doc *document.Document, saver Saver, notifier notify.Notifier, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	m := &Machine{
		status:   StatusSaved,
		doc:      doc,
		saver:    saver,
		notifier: notifier,
		inflight: semaphore.NewWeighted(1),
		logger:   logger.With("component", "autosave"),
	}
	doc.OnChange(func(c document.Change) {
		if c.Local {
			m.MarkDirty()
		}
	})
	return m
}

// OnTransition registers a listener called after every status change.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transitions returns every status change so far, oldest first.
func (m *Machine) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.transitions)
}

// MarkDirty records a local edit. While a save is in flight the status is
// left alone; the save detects the edit when it completes.
func (m *Machine) MarkDirty() {
	m.mu.Lock()
	var fired []Transition
	switch m.status {
	case StatusSaved, StatusError:
		fired = append(fired, m.transitionLocked(StatusUnsaved))
	}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	emit(listeners, fired)
}

// Save flushes the Document. It is a no-op when nothing is unsaved, returns
// ErrSaveInFlight if a save is already running, and moves to the error
// state when the saver fails. Retrying from error goes through unsaved.
func (m *Machine) Save(ctx context.Context) error {
	if !m.inflight.TryAcquire(1) {
		return ErrSaveInFlight
	}
	defer m.inflight.Release(1)

	m.mu.Lock()
	if m.status == StatusSaved {
		m.mu.Unlock()
		return nil
	}
	var fired []Transition
	if m.status == StatusError {
		fired = append(fired, m.transitionLocked(StatusUnsaved))
	}
	fired = append(fired, m.transitionLocked(StatusSaving))
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	emit(listeners, fired)

	snap := m.doc.Snapshot()
	req := Request{PostID: snap.ID, Content: snap.Content}
	if snap.ImagesChanged {
		req.ImagesChanged = true
		req.Files = snap.Attachments
		req.ExistingImages = snap.Images
	}

	m.logger.Debug("saving draft",
		"post_id", snap.ID,
		"version", snap.Version,
		"images_changed", snap.ImagesChanged)

	res, err := m.saver.SaveDraft(ctx, req)
	if err != nil {
		m.finish(StatusError)
		m.logger.Warn("draft save failed", "post_id", snap.ID, "error", err)
		m.notifier.Notify(notify.Notification{
			Level:   notify.LevelError,
			Title:   "Draft not saved",
			Message: err.Error(),
		})
		return fmt.Errorf("saving draft: %w", err)
	}
	if res == nil {
		res = &Result{Images: snap.Images}
	}

	changed := m.doc.MarkSaved(snap, res.ID, res.Images)
	if changed {
		m.finish(StatusSaved, StatusUnsaved)
	} else {
		m.finish(StatusSaved)
	}
	return nil
}

func (m *Machine) finish(states ...Status) {
	m.mu.Lock()
	var fired []Transition
	for _, s := range states {
		fired = append(fired, m.transitionLocked(s))
	}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	emit(listeners, fired)
}

func (m *Machine) transitionLocked(to Status) Transition {
	t := Transition{From: m.status, To: to, At: time.Now()}
	m.status = to
	m.transitions = append(m.transitions, t)
	m.logger.Debug("save status changed", "from", t.From, "to", t.To)
	return t
}

func emit(listeners []func(Transition), fired []Transition) {
	for _, t := range fired {
		for _, fn := range listeners {
			fn(t)
		}
	}
}
