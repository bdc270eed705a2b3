package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// TextProcessor turns the markdown of a textbox field into safe HTML.
type TextProcessor struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *TextProcessor {
	p := parser.NewParser(
		parser.WithBlockParsers(
			util.Prioritized(parser.NewFencedCodeBlockParser(), 700),
			util.Prioritized(parser.NewBlockquoteParser(), 800),
			util.Prioritized(parser.NewParagraphParser(), 1000),
		),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewCodeSpanParser(), 100),
			util.Prioritized(parser.NewLinkParser(), 200),
			util.Prioritized(parser.NewAutoLinkParser(), 300),
			util.Prioritized(parser.NewEmphasisParser(), 500),
		),
		parser.WithParagraphTransformers(
			util.Prioritized(parser.LinkReferenceParagraphTransformer, 100),
		),
	)

	md := goldmark.New(
		goldmark.WithParser(p),
		goldmark.WithRendererOptions(html.WithHardWraps()),
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^post-link$`)).OnElements("a")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.AllowRelativeURLs(true)

	return &TextProcessor{md: md, policy: policy}
}

// Render converts markdown to sanitized HTML. Raw HTML in the source never survives.
func (tp *TextProcessor) Render(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tp.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text)), err
	}
	return template.HTML(tp.policy.Sanitize(strings.TrimSpace(buf.String()))), nil
}

// Plain strips all markup, for places that only take text (titles, banners).
func (tp *TextProcessor) Plain(text string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(text))
}

// HasPayload reports whether text renders to anything besides whitespace.
func (tp *TextProcessor) HasPayload(text string) bool {
	rendered, err := tp.Render(text)
	if err != nil {
		return strings.TrimSpace(text) != ""
	}
	return tp.Plain(string(rendered)) != ""
}
