// ABOUTME: Line-oriented Server-Sent Events decoder producing (type, JSON payload) pairs
// ABOUTME: Buffers partial reads so an event is only emitted after its terminating blank line

package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DefaultEventType is used when an event carries neither an event: field nor a "type" payload field.
const DefaultEventType = "message"

// ErrMalformedEvent is returned by Decoder.Next for an event whose data is not valid JSON.
// The decoder stays usable; callers skip the event and keep reading.
var ErrMalformedEvent = errors.New("malformed event payload")

// Event is a single parsed server-sent event.
type Event struct {
	Type string
	Data json.RawMessage
}

// Decoder reads events from an SSE body.
type Decoder struct {
	r *bufio.Reader

	eventType string
	dataLines []string
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete event. It returns io.EOF once the body is
// exhausted; a trailing event without its blank-line terminator is discarded.
// ErrMalformedEvent is returned (with the event type filled in) when the
// payload is not JSON.
func (d *Decoder) Next() (Event, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// A partial line at EOF never completes an event
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			ev, ok, perr := d.dispatch()
			if perr != nil {
				return ev, perr
			}
			if ok {
				return ev, nil
			}
			continue
		}

		// Comment / keep-alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			d.eventType = strings.TrimSpace(value)
		case "data":
			d.dataLines = append(d.dataLines, value)
		default:
			// id:, retry: and unknown fields carry nothing we use
		}
	}
}

// dispatch turns the accumulated fields into an event and resets state.
func (d *Decoder) dispatch() (Event, bool, error) {
	eventType := d.eventType
	lines := d.dataLines
	d.eventType = ""
	d.dataLines = nil

	if len(lines) == 0 {
		return Event{}, false, nil
	}

	data := strings.Join(lines, "\n")
	if !json.Valid([]byte(data)) {
		return Event{Type: eventType}, false, ErrMalformedEvent
	}

	if eventType == "" {
		eventType = typeFromPayload(data)
	}

	return Event{Type: eventType, Data: json.RawMessage(data)}, true, nil
}

// typeFromPayload reads an embedded "type" field for servers that multiplex on data only.
func typeFromPayload(data string) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err == nil && envelope.Type != "" {
		return envelope.Type
	}
	return DefaultEventType
}
