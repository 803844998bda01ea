// ABOUTME: Routes tool_call events from the chat stream to registered side-effect handlers
// ABOUTME: Unknown tools and unsuccessful results are ignored, never surfaced as errors

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// EditContentTool is the tool that rewrites the post wholesale.
const EditContentTool = "edit_content"

// ErrToolCollision indicates a handler is already registered under the name.
var ErrToolCollision = errors.New("tool name collision")

// Result is the outcome reported by the server for a tool invocation.
type Result struct {
	Success   bool      `json:"success"`
	Content   string    `json:"content,omitempty"`
	ContentID ContentID `json:"content_id,omitempty"`
}

// Call is the payload of a tool_call event.
type Call struct {
	Tool   string `json:"tool"`
	Result Result `json:"result"`
}

// Status is the payload of a tool_status event. It is UI state only.
type Status struct {
	Status  string `json:"status"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// Handler applies the side effect of a successful call. It reports whether
// anything was mutated.
type Handler func(call Call) bool

// Dispatcher maps tool names to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with no handlers. Pass nil logger for default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "tools"),
	}
}

// Register installs h for the tool name.
func (d *Dispatcher) Register(name string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, name)
	}
	d.handlers[name] = h
	return nil
}

// Tools returns the registered tool names.
func (d *Dispatcher) Tools() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch decodes a tool_call payload and runs its handler. It returns
// true if the handler mutated state. Only a payload that cannot be decoded
// is an error.
func (d *Dispatcher) Dispatch(payload json.RawMessage) (bool, error) {
	var call Call
	if err := json.Unmarshal(payload, &call); err != nil {
		return false, fmt.Errorf("decoding tool call: %w", err)
	}
	return d.Apply(call), nil
}

// Apply runs the handler for an already decoded call.
func (d *Dispatcher) Apply(call Call) bool {
	d.mu.RLock()
	h, ok := d.handlers[call.Tool]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("ignoring unknown tool", "tool", call.Tool)
		return false
	}
	if !call.Result.Success {
		d.logger.Debug("ignoring failed tool call", "tool", call.Tool)
		return false
	}

	applied := h(call)
	d.logger.Debug("tool call dispatched", "tool", call.Tool, "applied", applied)
	return applied
}
