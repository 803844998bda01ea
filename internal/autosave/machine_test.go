// ABOUTME: Tests for the autosave state machine
// ABOUTME: Covers the allowed transitions, single-flight, image gating, failure handling and retries

package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/notify"
)

// fakeSaver records requests; it fails while err is set, blocks while gate
// is non-nil and runs during, when set, before answering.
type fakeSaver struct {
	mu       sync.Mutex
	requests []Request
	err      error
	result   *Result
	gate     chan struct{}
	started  chan struct{}
	during   func()
}

func (f *fakeSaver) SaveDraft(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate, started, err, result, during := f.gate, f.started, f.err, f.result, f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &Result{ID: req.PostID, Images: req.ExistingImages}, nil
	}
	return result, nil
}

func (f *fakeSaver) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// allowed lists the legal status transitions.
var allowed = map[Status][]Status{
	StatusSaved:   {StatusUnsaved},
	StatusUnsaved: {StatusSaving},
	StatusSaving:  {StatusSaved, StatusError},
	StatusError:   {StatusUnsaved},
}

func assertLegal(t *testing.T, transitions []Transition) {
	t.Helper()
	for _, tr := range transitions {
		assert.Contains(t, allowed[tr.From], tr.To, "illegal transition %s -> %s", tr.From, tr.To)
	}
}

func statuses(transitions []Transition) []Status {
	out := make([]Status, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, tr.To)
	}
	return out
}

func TestMachine_EditThenSave(t *testing.T) {
	doc := document.New("post_1", "v1", nil, nil)
	saver := &fakeSaver{}
	m := New(doc, saver, &notify.Recorder{}, nil)

	assert.Equal(t, StatusSaved, m.Status())
	doc.Edit("v2")
	assert.Equal(t, StatusUnsaved, m.Status())

	require.NoError(t, m.Save(context.Background()))

	assert.Equal(t, StatusSaved, m.Status())
	assert.Equal(t, []Status{StatusUnsaved, StatusSaving, StatusSaved}, statuses(m.Transitions()))
	assertLegal(t, m.Transitions())

	reqs := saver.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "post_1", reqs[0].PostID)
	assert.Equal(t, "v2", reqs[0].Content)
	assert.False(t, reqs[0].ImagesChanged)
	assert.Nil(t, reqs[0].Files)
	assert.Nil(t, reqs[0].ExistingImages)
	assert.False(t, doc.Snapshot().IsEdited)
}

func TestMachine_SaveWhenSavedIsNoOp(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	saver := &fakeSaver{}
	m := New(doc, saver, nil, nil)

	require.NoError(t, m.Save(context.Background()))
	assert.Empty(t, saver.Requests())
	assert.Empty(t, m.Transitions())
}

func TestMachine_ToolReplaceDoesNotMarkUnsaved(t *testing.T) {
	doc := document.New("", "", nil, nil)
	m := New(doc, &fakeSaver{}, nil, nil)

	doc.ReplaceFromTool("post_42", "New post body")

	assert.Equal(t, StatusSaved, m.Status())
}

func TestMachine_ToolReplaceDuringSaveKeepsToolBaseline(t *testing.T) {
	doc := document.New("", "draft", nil, nil)
	saver := &fakeSaver{result: &Result{ID: "post_7"}}
	saver.during = func() { doc.ReplaceFromTool("post_42", "New post body") }
	m := New(doc, saver, nil, nil)

	doc.Edit("draft v2")
	require.NoError(t, m.Save(context.Background()))

	snap := doc.Snapshot()
	assert.Equal(t, "New post body", snap.Content)
	assert.False(t, snap.IsEdited)
	assert.Equal(t, "post_42", snap.ID)
	assert.Equal(t, StatusSaved, m.Status())
	assert.Equal(t, []Status{StatusUnsaved, StatusSaving, StatusSaved}, statuses(m.Transitions()))
}

func TestMachine_EditAfterToolReplaceDuringSaveStaysUnsaved(t *testing.T) {
	doc := document.New("post_1", "draft", nil, nil)
	saver := &fakeSaver{}
	saver.during = func() {
		doc.ReplaceFromTool("", "New post body")
		doc.Edit("New post body!")
	}
	m := New(doc, saver, nil, nil)

	doc.Edit("draft v2")
	require.NoError(t, m.Save(context.Background()))

	snap := doc.Snapshot()
	assert.True(t, snap.IsEdited)
	assert.Equal(t, "post_1", snap.ID)
	assert.Equal(t, StatusUnsaved, m.Status())
	assertLegal(t, m.Transitions())
}

func TestMachine_ImagesSentOnlyWhenChanged(t *testing.T) {
	doc := document.New("p", "body", []string{"https://cdn/a.png"}, nil)
	saver := &fakeSaver{result: &Result{ID: "p", Images: []string{"https://cdn/a.png", "https://cdn/b.png"}}}
	m := New(doc, saver, nil, nil)

	doc.AddAttachment(document.Attachment{Name: "b.png", Data: []byte("png")})
	require.NoError(t, m.Save(context.Background()))

	reqs := saver.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].ImagesChanged)
	require.Len(t, reqs[0].Files, 1)
	assert.Equal(t, "b.png", reqs[0].Files[0].Name)
	assert.Equal(t, []string{"https://cdn/a.png"}, reqs[0].ExistingImages)

	snap := doc.Snapshot()
	assert.Equal(t, []string{"https://cdn/a.png", "https://cdn/b.png"}, snap.Images)
	assert.False(t, snap.ImagesChanged)

	doc.Edit("body 2")
	require.NoError(t, m.Save(context.Background()))
	reqs = saver.Requests()
	require.Len(t, reqs, 2)
	assert.False(t, reqs[1].ImagesChanged)
	assert.Nil(t, reqs[1].Files)
}

func TestMachine_FailureGoesToErrorAndNotifies(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	saver := &fakeSaver{err: errors.New("503 service unavailable")}
	rec := &notify.Recorder{}
	m := New(doc, saver, rec, nil)

	doc.Edit("v2")
	err := m.Save(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, StatusError, m.Status())
	require.Len(t, rec.Errors(), 1)
	assert.True(t, doc.Snapshot().IsEdited)

	// Nothing retries on its own
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusError, m.Status())
	assert.Len(t, saver.Requests(), 1)
}

func TestMachine_RetryFromErrorGoesThroughUnsaved(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	saver := &fakeSaver{err: errors.New("boom")}
	m := New(doc, saver, nil, nil)

	doc.Edit("v2")
	require.Error(t, m.Save(context.Background()))

	saver.mu.Lock()
	saver.err = nil
	saver.mu.Unlock()

	require.NoError(t, m.Save(context.Background()))

	assert.Equal(t, []Status{
		StatusUnsaved, StatusSaving, StatusError,
		StatusUnsaved, StatusSaving, StatusSaved,
	}, statuses(m.Transitions()))
	assertLegal(t, m.Transitions())
}

func TestMachine_EditFromErrorMovesToUnsaved(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	m := New(doc, &fakeSaver{err: errors.New("boom")}, nil, nil)

	doc.Edit("v2")
	require.Error(t, m.Save(context.Background()))

	doc.Edit("v3")
	assert.Equal(t, StatusUnsaved, m.Status())
	assertLegal(t, m.Transitions())
}

func TestMachine_SingleFlight(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	saver := &fakeSaver{gate: make(chan struct{}), started: make(chan struct{})}
	m := New(doc, saver, nil, nil)
	doc.Edit("v2")

	errCh := make(chan error, 1)
	go func() { errCh <- m.Save(context.Background()) }()
	<-saver.started

	assert.ErrorIs(t, m.Save(context.Background()), ErrSaveInFlight)
	assert.Equal(t, StatusSaving, m.Status())

	// Edits are not blocked by the in-flight save
	doc.Edit("v3")
	assert.Equal(t, StatusSaving, m.Status())

	close(saver.gate)
	require.NoError(t, <-errCh)

	assert.Equal(t, StatusUnsaved, m.Status(), "edit during save leaves the draft unsaved")
	assert.Equal(t, []Status{StatusUnsaved, StatusSaving, StatusSaved, StatusUnsaved}, statuses(m.Transitions()))
	assertLegal(t, m.Transitions())
	assert.Len(t, saver.Requests(), 1)
	assert.True(t, doc.Snapshot().IsEdited)
}

func TestMachine_OnTransition(t *testing.T) {
	doc := document.New("p", "v1", nil, nil)
	m := New(doc, &fakeSaver{}, nil, nil)

	var seen []Status
	m.OnTransition(func(tr Transition) { seen = append(seen, tr.To) })

	doc.Edit("v2")
	require.NoError(t, m.Save(context.Background()))

	assert.Equal(t, []Status{StatusUnsaved, StatusSaving, StatusSaved}, seen)
}

func TestMachine_ServerIDAdopted(t *testing.T) {
	doc := document.New("", "", nil, nil)
	m := New(doc, &fakeSaver{result: &Result{ID: "post_99"}}, nil, nil)

	doc.Edit("hello")
	require.NoError(t, m.Save(context.Background()))

	assert.Equal(t, "post_99", doc.ID())
}
