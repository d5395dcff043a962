package outputfmt

import (
	"regexp"
	"strings"
)

var (
	// [label](target) and ![alt](target), allowing one level of parentheses
	// inside the target and an optional quoted title.
	markdownLinkRE = regexp.MustCompile(`!?\[([^\[\]]*)\]\((?:[^()\s]|\([^()\s]*\))*(?:\s+"[^"]*")?\)`)
	angleURLRE     = regexp.MustCompile(`(?i)<(?:(?:https?|ftp)://|www\.)[^\s<>]*>`)
	escapedURLRE   = regexp.MustCompile(`(?i)&lt;(?:(?:https?|ftp)://|www\.)[^\s<>]*?&gt;`)
	// A bare scheme with nothing after it still counts, so "http://" left
	// dangling in the text is removed as well.
	bareURLRE = regexp.MustCompile("(?i)(?:(?:https?|ftp)://|\\bwww\\.)[^\\s<>\"'`]*")
)

// StripLinks replaces every Markdown link with its label and removes bare
// URLs. Text without links or URLs is returned unchanged, and applying it
// twice gives the same result as applying it once.
func StripLinks(text string) string {
	if text == "" {
		return text
	}
	// Closing the gap left by a removal can join the neighbours into a new
	// match; every pass that changes the text shortens it, so this ends.
	for {
		next := stripLinksOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func stripLinksOnce(text string) string {
	out := markdownLinkRE.ReplaceAllString(text, "$1")
	out = removeMatches(out, angleURLRE, wholeMatch)
	out = removeMatches(out, escapedURLRE, wholeMatch)
	return removeMatches(out, bareURLRE, urlMatchLen)
}

// removeMatches drops each match of re from text. keep returns how many bytes
// of the match really belong to the URL (-1 for all of it); the remainder is
// handed back to the surrounding text. Blanks left doubled by a removal are
// collapsed, nothing else is touched.
func removeMatches(text string, re *regexp.Regexp, keep func(string) int) string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if n := keep(text[start:end]); n >= 0 {
			end = start + n
		}
		if end <= start {
			continue
		}
		b.WriteString(text[last:start])
		last = end
		rest := text[last:]
		trimmed := strings.TrimLeft(rest, " \t")
		written := b.String()
		switch {
		case atLineStart(written):
			last += len(rest) - len(trimmed)
		case trimmed == "" || strings.HasPrefix(trimmed, "\n") || strings.HasPrefix(trimmed, "\r"):
			// trailing blanks before the line break go, and so do the ones the
			// URL was separated by.
			cut := strings.TrimRight(written, " \t")
			b.Reset()
			b.WriteString(cut)
			last += len(rest) - len(trimmed)
		case strings.HasSuffix(written, "(") && strings.HasPrefix(rest, ")"):
			// "(url)" leaves nothing worth keeping
			cut := strings.TrimRight(strings.TrimSuffix(written, "("), " \t")
			b.Reset()
			b.WriteString(cut)
			last++
		case endsWithBlank(written) && len(rest) != len(trimmed):
			last += len(rest) - len(trimmed)
		case endsWithBlank(written) && trimmed != "" && strings.ContainsRune(".,;:!?)", rune(trimmed[0])):
			b.Reset()
			b.WriteString(strings.TrimRight(written, " \t"))
		}
	}
	b.WriteString(text[last:])
	return b.String()
}

func wholeMatch(string) int { return -1 }

// urlMatchLen trims punctuation that usually closes the sentence rather than
// the URL, an unbalanced closing bracket, and HTML entities that mark the end
// of an escaped span.
func urlMatchLen(match string) int {
	n := len(match)
	for _, ent := range []string{"&lt;", "&gt;", "&quot;", "&#39;"} {
		if i := strings.Index(match[:n], ent); i >= 0 {
			n = i
		}
	}
	for n > 0 {
		c := match[n-1]
		switch c {
		case '.', ',', ';', ':', '!', '?', '*', '_':
			n--
			continue
		case ')':
			if strings.Count(match[:n], "(") < strings.Count(match[:n], ")") {
				n--
				continue
			}
		case ']':
			if strings.Count(match[:n], "[") < strings.Count(match[:n], "]") {
				n--
				continue
			}
		}
		break
	}
	return n
}

func atLineStart(s string) bool {
	return s == "" || strings.HasSuffix(s, "\n")
}

func endsWithBlank(s string) bool {
	return strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t")
}
