// Package markdown renders model output for the web pages and pulls runnable
// code out of it.
package markdown

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// ToHTML converts markdown to HTML. goldmark escapes raw HTML in the input
// unless the unsafe renderer option is set, so the result can be embedded in
// a page as-is.
func ToHTML(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// ExtractCode returns the body of the first fenced code block in src, or src
// trimmed of surrounding whitespace if there is none.
func ExtractCode(src string) string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var code string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		code = b.String()
		return ast.WalkStop, nil
	})

	if code == "" {
		return strings.TrimSpace(src)
	}
	return code
}

// Language returns the info string of the first fenced code block, e.g.
// "python", or "" when there is none.
func Language(src string) string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var lang string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if block, ok := n.(*ast.FencedCodeBlock); ok && entering {
			lang = string(block.Language(source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return lang
}
