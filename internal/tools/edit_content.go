// ABOUTME: Handler for the edit_content tool: replaces the Document with the tool's output
// ABOUTME: The replace becomes the new persisted baseline, so the draft is not marked edited

package tools

import "github.com/2389/coven-compose/internal/document"

// EditContentHandler returns a Handler that installs the tool's content in
// doc. Empty content is ignored.
func EditContentHandler(doc *document.Document) Handler {
	return func(call Call) bool {
		if call.Result.Content == "" {
			return false
		}
		doc.ReplaceFromTool(string(call.Result.ContentID), call.Result.Content)
		return true
	}
}
