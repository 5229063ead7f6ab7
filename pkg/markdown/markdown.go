// Package markdown renders an answer or artifact body to HTML for the
// orchestrator's artifact-generation step (spec §4.1): a deterministic
// markdown-to-HTML transformer wrapped in a styled document shell.
//
// The goldmark usage is grounded on the teacher pack's docsaf markdown
// processor (antflydb-antfly-go/docsaf/markdown.go), which already
// depends on goldmark for section chunking; here the same library
// renders straight to HTML instead of walking the AST into sections.
package markdown

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
)

var renderer = goldmark.New()

// ToHTML converts markdown source to an HTML fragment (headers, bold,
// italics, lists, paragraphs — whatever goldmark's default extension set
// supports).
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// documentShell wraps a rendered body in a minimal, styled HTML document
// with the originating query printed as a subtitle.
const documentShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 840px; margin: 2rem auto; line-height: 1.5; color: #1a1a1a; }
h1 { border-bottom: 1px solid #ddd; padding-bottom: 0.3rem; }
.subtitle { color: #666; font-style: italic; margin-top: -0.5rem; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
</style>
</head>
<body>
<h1>%s</h1>
<p class="subtitle">%s</p>
%s
</body>
</html>`

// RenderArtifact produces the full HTML document for an Artifact: title,
// the originating query as subtitle, and the rendered body.
func RenderArtifact(title, query, body string) (string, error) {
	bodyHTML, err := ToHTML(body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(documentShell, html.EscapeString(title), html.EscapeString(title), html.EscapeString(query), bodyHTML), nil
}
