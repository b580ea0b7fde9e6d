package generator

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
)

var (
	leadingFence  = regexp.MustCompile("^```[\\w-]*\\s*")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
	firstTag      = regexp.MustCompile(`<\s*[A-Za-z!/][^>]*>`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)

	titleReplacer = strings.NewReplacer(`"`, "", "'", "", "**", "", "##", "", "#", "")
)

// CleanContent strips code fences and any prose before the first HTML tag.
// Applying it to its own output returns the output unchanged.
func CleanContent(content string) string {
	content = strings.TrimSpace(content)
	// closing fence only goes together with an opening one
	if loc := leadingFence.FindStringIndex(content); loc != nil {
		content = trailingFence.ReplaceAllString(content[loc[1]:], "")
	}
	if loc := firstTag.FindStringIndex(content); loc != nil {
		content = content[loc[0]:]
	}
	return strings.TrimSpace(content)
}

// CleanTitle removes quotes and markdown emphasis/heading markers.
func CleanTitle(title string) string {
	return strings.TrimSpace(titleReplacer.Replace(title))
}

// HasMarkup reports whether content contains at least one HTML tag.
func HasMarkup(content string) bool {
	return firstTag.MatchString(content)
}

// EnsureHTML 模型偶尔忽略 HTML 要求直接返回 Markdown，这里统一渲染成 HTML。
func EnsureHTML(content string) (string, error) {
	if content == "" || HasMarkup(content) {
		return content, nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// PlainText drops all markup and collapses whitespace.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(tagPattern.ReplaceAllString(html, " ")), " ")
	}
	doc.Find("script,style").Remove()

	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				parts = append(parts, c.Text())
				return
			}
			walk(c)
		})
	}
	walk(doc.Find("body"))
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// TrimWords keeps the first n words of text, appending more when it cut anything.
func TrimWords(text string, n int, more string) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + more
}
