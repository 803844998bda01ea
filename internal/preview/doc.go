// Package preview renders post drafts for review before saving.
//
// Drafts are markdown. Render returns the HTML (raw HTML in the source is
// omitted) together with the plain text a reader would see, whose rune
// count is checked against the configured preview.max_length.
package preview
