// ABOUTME: The post Document shared by user edits, tool-call replaces and selection edits
// ABOUTME: Every write bumps a monotonic version and is appended to a write log (last writer wins)

package document

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Writer identifies which actor mutated the Document.
type Writer string

const (
	WriterUser          Writer = "user"
	WriterTool          Writer = "tool"
	WriterSelectionEdit Writer = "selection_edit"
	WriterRestore       Writer = "restore"
)

// local reports whether a write counts as a local edit for autosave.
func (w Writer) local() bool {
	return w != WriterTool
}

// Write is one entry of the Document's write log.
type Write struct {
	Version uint64
	Writer  Writer
	At      time.Time
	// Clobbered is set when a tool replace discarded unsaved local edits.
	Clobbered bool
}

// Attachment is an image file waiting to be uploaded with the next save.
type Attachment struct {
	Name string
	Data []byte
}

// Change is passed to listeners after every mutation.
type Change struct {
	Writer  Writer
	Version uint64
	// Local is true for edits that should mark the draft unsaved.
	Local bool
}

// Snapshot is a point-in-time copy of the Document.
type Snapshot struct {
	ID            string
	Content       string
	IsEdited      bool
	Version       uint64
	Images        []string
	Attachments   []Attachment
	ImagesChanged bool
	imagesRev     uint64
}

// Document is the generated post. IsEdited is true whenever the content
// differs from the last persisted value; a tool replace resets that value.
type Document struct {
	mu            sync.Mutex
	id            string
	content       string
	baseline      string
	edited        bool
	version       uint64
	images        []string
	attachments   []Attachment
	imagesChanged bool
	imagesRev     uint64
	writes        []Write
	listeners     []func(Change)

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Document whose persisted baseline is content. Pass nil
// logger for default.
func New(id, content string, images []string, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		id:       id,
		content:  content,
		baseline: content,
		images:   slices.Clone(images),
		logger:   logger.With("component", "document"),
		now:      time.Now,
	}
}

// OnChange registers a listener. Listeners run synchronously after the
// mutation, outside the Document lock.
func (d *Document) OnChange(fn func(Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Edit applies a local user edit and returns the new version.
func (d *Document) Edit(content string) uint64 {
	return d.Set(WriterUser, content)
}

// Set replaces the content on behalf of writer and returns the new version.
func (d *Document) Set(writer Writer, content string) uint64 {
	d.mu.Lock()
	change := d.writeLocked(writer, content)
	d.edited = d.content != d.baseline
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	notify(listeners, change)
	return change.Version
}

// SetIfVersion writes only if no other write happened since expected. It
// reports whether the write was applied.
func (d *Document) SetIfVersion(writer Writer, content string, expected uint64) (uint64, bool) {
	d.mu.Lock()
	if d.version != expected {
		current := d.version
		d.mu.Unlock()
		return current, false
	}
	change := d.writeLocked(writer, content)
	d.edited = d.content != d.baseline
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	notify(listeners, change)
	return change.Version, true
}

// ReplaceFromTool installs tool output as the new persisted baseline. An
// empty id leaves the current id untouched. Unsaved local edits are lost.
func (d *Document) ReplaceFromTool(id, content string) uint64 {
	d.mu.Lock()
	change := d.writeLocked(WriterTool, content)
	if id != "" {
		d.id = id
	}
	d.baseline = content
	d.edited = false
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	notify(listeners, change)
	return change.Version
}

// AddAttachment queues an image for upload with the next save.
func (d *Document) AddAttachment(a Attachment) uint64 {
	d.mu.Lock()
	d.attachments = append(d.attachments, a)
	change := d.imagesChangedLocked()
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	notify(listeners, change)
	return change.Version
}

// RemoveImage drops a persisted image url. It returns false if url is unknown.
func (d *Document) RemoveImage(url string) bool {
	d.mu.Lock()
	i := slices.Index(d.images, url)
	if i < 0 {
		d.mu.Unlock()
		return false
	}
	d.images = slices.Delete(d.images, i, i+1)
	change := d.imagesChangedLocked()
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	notify(listeners, change)
	return true
}

// MarkSaved records a successful save of snap. The server's image list
// replaces the local one and a non-empty id is adopted unless a tool
// replace assigned a new id meanwhile. It returns true if a local write or
// image change landed while the save was in flight; a tool replace does not
// count, as it is already persisted.
func (d *Document) MarkSaved(snap Snapshot, id string, images []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A tool replace after the snapshot is a newer baseline than the save
	since, toolAfter := snap.Version, false
	for _, w := range d.writes {
		if w.Version > snap.Version && w.Writer == WriterTool {
			since, toolAfter = w.Version, true
		}
	}
	if id != "" && (!toolAfter || d.id == snap.ID) {
		d.id = id
	}
	if !toolAfter {
		d.baseline = snap.Content
	}
	d.edited = d.content != d.baseline
	d.images = slices.Clone(images)
	if d.imagesRev == snap.imagesRev {
		d.attachments = nil
		d.imagesChanged = false
	} else {
		// Attachments queued during the save stay pending
		d.attachments = slices.Clone(d.attachments[min(len(snap.Attachments), len(d.attachments)):])
	}

	changed := d.imagesRev != snap.imagesRev
	for _, w := range d.writes {
		if w.Version > since && w.Writer.local() {
			changed = true
		}
	}
	d.logger.Debug("draft saved",
		"id", d.id,
		"version", snap.Version,
		"current_version", d.version,
		"images", len(d.images))
	return changed
}

// Snapshot returns a copy of the current state.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		ID:            d.id,
		Content:       d.content,
		IsEdited:      d.edited,
		Version:       d.version,
		Images:        slices.Clone(d.images),
		Attachments:   slices.Clone(d.attachments),
		ImagesChanged: d.imagesChanged,
		imagesRev:     d.imagesRev,
	}
}

// Content returns the current content.
func (d *Document) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// ID returns the persisted id, or "" for a Document never saved.
func (d *Document) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Version returns the current write counter.
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Writes returns the write log, oldest first.
func (d *Document) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.writes)
}

func (d *Document) writeLocked(writer Writer, content string) Change {
	clobbered := writer == WriterTool && d.edited && d.content != content
	if clobbered {
		d.logger.Warn("write replaced unsaved edits",
			"writer", writer,
			"version", d.version+1)
	}

	d.version++
	d.content = content
	d.writes = append(d.writes, Write{
		Version:   d.version,
		Writer:    writer,
		At:        d.now(),
		Clobbered: clobbered,
	})
	return Change{Writer: writer, Version: d.version, Local: writer.local()}
}

func (d *Document) imagesChangedLocked() Change {
	d.version++
	d.imagesRev++
	d.imagesChanged = true
	return Change{Writer: WriterUser, Version: d.version, Local: true}
}

func notify(listeners []func(Change), change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}
