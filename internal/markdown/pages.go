package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SplitPages cuts src at every top-level HTML block equal to placeholder.
// Placeholders inside code blocks or inline spans are left alone. The
// result always has at least one element.
func SplitPages(src []byte, placeholder string) []string {
	placeholder = strings.TrimSpace(placeholder)
	if placeholder == "" {
		return []string{strings.TrimSpace(string(src))}
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var pages []string
	last := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		block, ok := n.(*ast.HTMLBlock)
		if !ok {
			continue
		}
		start, stop, body := htmlBlockSpan(block, src)
		if start < 0 || strings.TrimSpace(body) != placeholder {
			continue
		}
		pages = append(pages, strings.TrimSpace(string(src[last:start])))
		last = stop
	}
	pages = append(pages, strings.TrimSpace(string(src[last:])))
	return pages
}

func htmlBlockSpan(block *ast.HTMLBlock, src []byte) (int, int, string) {
	var body bytes.Buffer
	start, stop := -1, -1
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if start < 0 {
			start = seg.Start
		}
		stop = seg.Stop
		body.Write(seg.Value(src))
	}
	if block.HasClosure() {
		seg := block.ClosureLine
		if start < 0 {
			start = seg.Start
		}
		stop = max(stop, seg.Stop)
		body.Write(seg.Value(src))
	}
	return start, stop, body.String()
}
