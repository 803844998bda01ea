// ABOUTME: Tests for notifiers
// ABOUTME: Covers the slog notifier output, fan-out and the recorder

package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLogNotifier(logger).Notify(Notification{Level: LevelError, Title: "Save failed", Message: "boom"})

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "Save failed")
	assert.Contains(t, out, "message=boom")
	assert.Contains(t, out, "component=notify")
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	var called int
	m := Multi{&a, nil, &b, Func(func(Notification) { called++ })}

	m.Notify(Notification{Level: LevelInfo, Title: "hi"})

	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)
	assert.Equal(t, 1, called)
}

func TestRecorder_Errors(t *testing.T) {
	var r Recorder
	r.Notify(Notification{Level: LevelInfo, Title: "saved"})
	r.Notify(Notification{Level: LevelError, Title: "failed"})

	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "failed", errs[0].Title)
	assert.Len(t, r.All(), 2)
}
