package telegramutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const thematicBreak = "──────────"

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
).Parser()

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the three characters Telegram's HTML parse mode
// requires to be written as entities.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// MarkdownToHTML converts model output written in Markdown into the subset of
// HTML accepted by Telegram's HTML parse mode. Links keep only their label,
// images keep their alt text, headings become bold lines and raw HTML in the
// source is escaped rather than passed through.
func MarkdownToHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	src := []byte(md)
	doc := markdownParser.Parse(text.NewReader(src))
	r := &htmlRenderer{src: src}
	return strings.TrimSpace(r.blocks(doc, 0, "\n\n"))
}

type htmlRenderer struct {
	src []byte
}

func (r *htmlRenderer) blocks(parent ast.Node, depth int, sep string) string {
	var parts []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := r.block(n, depth); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *htmlRenderer) block(n ast.Node, depth int) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return r.inline(n)
	case *ast.Heading:
		return "<b>" + r.inline(n) + "</b>"
	case *ast.ThematicBreak:
		return thematicBreak
	case *ast.FencedCodeBlock:
		lang := strings.TrimSpace(string(n.Language(r.src)))
		return codeBlock(r.lines(n), lang)
	case *ast.CodeBlock:
		return codeBlock(r.lines(n), "")
	case *ast.Blockquote:
		return "<blockquote>" + r.blocks(n, depth, "\n") + "</blockquote>"
	case *ast.List:
		return r.list(n, depth)
	case *ast.HTMLBlock:
		return EscapeHTML(strings.TrimRight(r.lines(n), "\n"))
	default:
		if c := n.FirstChild(); c != nil && c.Type() == ast.TypeInline {
			return r.inline(n)
		}
		return r.blocks(n, depth, "\n")
	}
}

func (r *htmlRenderer) list(l *ast.List, depth int) string {
	indent := strings.Repeat("  ", depth)
	num := l.Start
	var lines []string
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = strconv.Itoa(num) + ". "
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				lines = append(lines, r.list(sub, depth+1))
				continue
			}
			s := r.block(c, depth+1)
			if first {
				lines = append(lines, indent+marker+s)
				first = false
				continue
			}
			lines = append(lines, indent+"  "+s)
		}
		if first {
			lines = append(lines, indent+strings.TrimSpace(marker))
		}
	}
	return strings.Join(lines, "\n")
}

func (r *htmlRenderer) lines(n ast.Node) string {
	var b strings.Builder
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(r.src))
	}
	return b.String()
}

func codeBlock(code, lang string) string {
	code = EscapeHTML(strings.TrimRight(code, "\n"))
	if lang == "" {
		return "<pre>" + code + "</pre>"
	}
	return fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, EscapeHTML(lang), code)
}

func (r *htmlRenderer) inline(parent ast.Node) string {
	var b strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		r.writeInline(&b, n)
	}
	return b.String()
}

func (r *htmlRenderer) writeInline(b *strings.Builder, n ast.Node) {
	switch n := n.(type) {
	case *ast.Text:
		v := n.Segment.Value(r.src)
		v = util.ResolveEntityNames(util.ResolveNumericReferences(util.UnescapePunctuations(v)))
		b.WriteString(EscapeHTML(string(v)))
		if n.SoftLineBreak() || n.HardLineBreak() {
			b.WriteByte('\n')
		}
	case *ast.String:
		b.WriteString(EscapeHTML(string(n.Value)))
	case *ast.CodeSpan:
		b.WriteString("<code>")
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				v := string(t.Segment.Value(r.src))
				v = strings.ReplaceAll(v, "\n", " ")
				b.WriteString(EscapeHTML(v))
			}
		}
		b.WriteString("</code>")
	case *ast.Emphasis:
		tag := "i"
		if n.Level >= 2 {
			tag = "b"
		}
		b.WriteString("<" + tag + ">" + r.inline(n) + "</" + tag + ">")
	case *east.Strikethrough:
		b.WriteString("<s>" + r.inline(n) + "</s>")
	case *ast.Link, *ast.Image:
		b.WriteString(r.inline(n))
	case *ast.AutoLink:
		b.WriteString(EscapeHTML(string(n.Label(r.src))))
	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.WriteString(EscapeHTML(string(seg.Value(r.src))))
		}
	default:
		b.WriteString(r.inline(n))
	}
}
