// ABOUTME: Renders the post draft as HTML and measures its visible length
// ABOUTME: Length counts runes of the rendered plain text, not of the markdown source

package preview

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Preview is a rendered draft.
type Preview struct {
	HTML string
	// Text is the draft as a reader sees it, with markdown syntax removed.
	Text   string
	Length int
	// Limit is the configured maximum length; 0 means unlimited.
	Limit int
}

// Overflow returns how many runes the draft exceeds the limit by.
func (p *Preview) Overflow() int {
	if p.Limit <= 0 || p.Length <= p.Limit {
		return 0
	}
	return p.Length - p.Limit
}

// Renderer converts markdown drafts into previews.
type Renderer struct {
	md    goldmark.Markdown
	limit int
}

// NewRenderer creates a renderer enforcing maxLength (0 for none).
func NewRenderer(maxLength int) *Renderer {
	return &Renderer{
		md:    goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		limit: maxLength,
	}
}

// Render parses content once and produces both the HTML and the plain text.
func (r *Renderer) Render(content string) (*Preview, error) {
	source := []byte(content)
	doc := r.md.Parser().Parse(text.NewReader(source))

	var html bytes.Buffer
	if err := r.md.Renderer().Render(&html, source, doc); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	plain, err := plainText(doc, source)
	if err != nil {
		return nil, err
	}

	return &Preview{
		HTML:   html.String(),
		Text:   plain,
		Length: utf8.RuneCountInString(plain),
		Limit:  r.limit,
	}, nil
}

func plainText(doc ast.Node, source []byte) (string, error) {
	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.NextSibling() != nil {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			trimTrailingNewline(&b)
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func trimTrailingNewline(b *strings.Builder) {
	s := b.String()
	if trimmed := strings.TrimRight(s, "\n"); len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}
