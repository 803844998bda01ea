// ABOUTME: ContentID accepts a persisted post id sent as either a JSON string or number
// ABOUTME: Normalizes both forms to a string

package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentID is a post id that the server may encode as a string or a number.
type ContentID string

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding content_id: %w", err)
		}
		*c = ContentID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("content_id must be a string or number: %w", err)
	}
	*c = ContentID(n.String())
	return nil
}
