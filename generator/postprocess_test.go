package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html fence", "```html\n<p>Hi</p>\n```", "<p>Hi</p>"},
		{"plain fence", "```\n<p>Hi</p>\n```", "<p>Hi</p>"},
		{"already clean", "<p>Hi</p>", "<p>Hi</p>"},
		{"leading prose", "Sure! Here is your article:\n<h2>Intro</h2><p>Body</p>", "<h2>Intro</h2><p>Body</p>"},
		{"fence and prose", "```html\nHere you go\n<p>Hi</p>\n```\n", "<p>Hi</p>"},
		{"surrounding whitespace", "  \n<p>Hi</p>\n\n", "<p>Hi</p>"},
		{"no markup", "Just some text", "Just some text"},
		{"markdown ending in code block", "```markdown\n## Setup\n\nRun this:\n\n```bash\nmake\n```\n```", "## Setup\n\nRun this:\n\n```bash\nmake\n```"},
		{"unpaired closing fence", "## Setup\n\n```bash\nmake\n```", "## Setup\n\n```bash\nmake\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanContent(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanContent(got), "not idempotent")
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Hello" **World**`, "Hello World"},
		{"## Heading", "Heading"},
		{"# It's here", "Its here"},
		{"  plain  ", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), tt.in)
	}
}

func TestPlainText(t *testing.T) {
	html := "<h2>Title</h2><p>First <strong>bold</strong> para.</p><script>x()</script><p>Second</p>"
	assert.Equal(t, "Title First bold para. Second", PlainText(html))
	assert.Equal(t, "no tags here", PlainText("no   tags\nhere"))
}

func TestTrimWords(t *testing.T) {
	assert.Equal(t, "a b c", TrimWords("a b c", 5, "..."))
	assert.Equal(t, "a b...", TrimWords("a b c d", 2, "..."))
	assert.Equal(t, "", TrimWords("   ", 3, "..."))
	long := strings.Repeat("word ", 20)
	assert.Len(t, strings.Fields(TrimWords(long, 15, "")), 15)
}

func TestEnsureHTML(t *testing.T) {
	out, err := EnsureHTML("<p>kept</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p>kept</p>", out)

	out, err = EnsureHTML("## Heading\n\nSome *text*.")
	require.NoError(t, err)
	assert.Contains(t, out, "<h2>Heading</h2>")
	assert.Contains(t, out, "<em>text</em>")
	assert.Equal(t, out, CleanContent(out))
}
