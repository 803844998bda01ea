// ABOUTME: Tests for draft preview rendering
// ABOUTME: Covers HTML output, plain text extraction, rune counting and overflow

package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_HTMLAndText(t *testing.T) {
	r := NewRenderer(0)

	p, err := r.Render("Hello **World**")
	require.NoError(t, err)

	assert.Equal(t, "<p>Hello <strong>World</strong></p>\n", p.HTML)
	assert.Equal(t, "Hello World", p.Text)
	assert.Equal(t, 11, p.Length)
	assert.Equal(t, 0, p.Overflow())
}

func TestRender_PlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "heading and paragraph", in: "# Launch\n\nWe shipped.", want: "Launch\nWe shipped."},
		{name: "link text only", in: "[our blog](https://example.com)", want: "our blog"},
		{name: "inline code", in: "run `make`", want: "run make"},
		{name: "fenced code", in: "```\nfoo()\n```", want: "foo()"},
		{name: "strikethrough", in: "~~old~~ new", want: "old new"},
		{name: "raw html dropped", in: "a <b>b</b>", want: "a b"},
		{name: "empty", in: "", want: ""},
	}

	r := NewRenderer(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Render(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Text)
		})
	}
}

func TestRender_CountsRunes(t *testing.T) {
	p, err := NewRenderer(0).Render("héllo 👋")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Length)
}

func TestRender_Overflow(t *testing.T) {
	p, err := NewRenderer(5).Render("Hello **World**")
	require.NoError(t, err)

	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, 6, p.Overflow())

	fits, err := NewRenderer(11).Render("Hello World")
	require.NoError(t, err)
	assert.Equal(t, 0, fits.Overflow())
}

func TestRender_RawHTMLOmitted(t *testing.T) {
	p, err := NewRenderer(0).Render("<script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, p.HTML, "<script>")
}
