// ABOUTME: Toast-level user notifications raised by stream, autosave and selection-edit failures
// ABOUTME: Provides a slog-backed notifier, a fan-out, and an in-memory recorder

package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one non-blocking message to the user.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier delivers notifications to the user. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. Pass nil logger for default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, n.Title, "message", n.Message)
}

// Multi sends each notification to every wrapped notifier.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(n)
		}
	}
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns the notifications received so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.all)
}

// Errors returns the error-level notifications received so far.
func (r *Recorder) Errors() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.all {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}
