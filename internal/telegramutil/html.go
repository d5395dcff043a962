package telegramutil

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrParseEntities is matched by Telegram request errors whose description
// reports that the HTML markup of a message could not be parsed.
var ErrParseEntities = errors.New("telegram: can't parse entities")

type RenderStatus int

const (
	// Rendered means the text can be sent with parse_mode=HTML as is.
	Rendered RenderStatus = iota
	// NeedsPlainFallback means the markup would be rejected; Text then holds
	// the tag-free version to send without a parse mode.
	NeedsPlainFallback
)

func (s RenderStatus) String() string {
	switch s {
	case Rendered:
		return "rendered"
	case NeedsPlainFallback:
		return "needs_plain_fallback"
	default:
		return "unknown"
	}
}

type RenderResult struct {
	Status RenderStatus
	Text   string
	Reason string
}

var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
	"a": true, "blockquote": true,
	"tg-spoiler": true, "span": true,
}

var entityRE = regexp.MustCompile(`^&(?:#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|lt|gt|amp|quot);`)

// RenderHTML checks text against the markup rules of Telegram's HTML parse
// mode: only supported tags, properly nested, and no bare '<', '>' or '&'.
func RenderHTML(text string) RenderResult {
	if reason := validateHTML(text); reason != "" {
		return RenderResult{Status: NeedsPlainFallback, Text: StripTags(text), Reason: reason}
	}
	return RenderResult{Status: Rendered, Text: text}
}

func validateHTML(text string) string {
	var stack []string
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "tokenize: " + err.Error()
			}
			if len(stack) > 0 {
				return "unclosed <" + stack[len(stack)-1] + ">"
			}
			return ""
		case html.StartTagToken:
			tok := z.Token()
			if !allowedTags[tok.Data] {
				return "unsupported tag <" + tok.Data + ">"
			}
			if tok.Data == "span" && !hasSpoilerClass(tok) {
				return "span without tg-spoiler class"
			}
			stack = append(stack, tok.Data)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(stack) == 0 || stack[len(stack)-1] != tag {
				return "unexpected </" + tag + ">"
			}
			stack = stack[:len(stack)-1]
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			return "unsupported tag <" + string(name) + "/>"
		case html.CommentToken, html.DoctypeToken:
			return "unsupported markup"
		case html.TextToken:
			if reason := validateText(z.Raw()); reason != "" {
				return reason
			}
		}
	}
}

func hasSpoilerClass(tok html.Token) bool {
	for _, a := range tok.Attr {
		if a.Key == "class" && a.Val == "tg-spoiler" {
			return true
		}
	}
	return false
}

func validateText(raw []byte) string {
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '<':
			return "bare '<' in text"
		case '>':
			return "bare '>' in text"
		case '&':
			if !entityRE.Match(raw[i:]) {
				return "bare '&' in text"
			}
		}
	}
	return ""
}

// StripTags removes all markup and decodes entities, producing text suitable
// for sending without a parse mode.
func StripTags(text string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
