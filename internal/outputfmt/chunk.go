package outputfmt

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TelegramMessageLimit is the maximum length of a single Telegram message,
// counted in characters after entity parsing.
const TelegramMessageLimit = 4096

const maxBalanceAttempts = 8

var htmlTagRE = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)[^<>]*>`)

type openTag struct {
	name string
	raw  string
}

// Chunk splits text into pieces of at most limit runes. Text that already
// fits is returned as a single piece. Longer text is cut at the last line
// break that fits, else the last blank, else hard at the limit; a cut never
// lands inside a markup tag or an HTML entity when an earlier boundary
// exists. Elements left open at a cut are closed at the end of the piece and
// reopened at the start of the next one.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = TelegramMessageLimit
	}
	rs := []rune(text)
	if len(rs) <= limit {
		return []string{text}
	}
	unsafe := unsafeCuts(rs)

	var (
		out  []string
		open []openTag
		pos  int
	)
	for pos < len(rs) {
		piece, cut, next := nextPiece(rs, unsafe, pos, limit, open)
		if strings.TrimSpace(stripHTMLTags(piece)) != "" {
			out = append(out, piece)
		}
		pos, open = cut, next
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return out
}

// nextPiece picks the cut for the piece starting at pos and returns the
// rendered piece, the cut position and the tags still open after it.
func nextPiece(rs []rune, unsafe []bool, pos, limit int, open []openTag) (string, int, []openTag) {
	prefix := reopenTags(open)
	reserve := utf8.RuneCountInString(closeTags(open))
	for attempt := 0; attempt < maxBalanceAttempts; attempt++ {
		budget := limit - utf8.RuneCountInString(prefix) - reserve
		if budget < 1 || budget < limit/2 {
			break
		}
		cut := pickCut(rs, unsafe, pos, budget)
		body := strings.TrimSpace(string(rs[pos:cut]))
		next := trackTags(open, body)
		closers := closeTags(next)
		n := utf8.RuneCountInString(prefix) + utf8.RuneCountInString(body) + utf8.RuneCountInString(closers)
		if n <= limit {
			return prefix + body + closers, cut, next
		}
		reserve = utf8.RuneCountInString(closers)
	}
	// Balancing does not fit; emit the raw slice and let rendering fall back.
	cut := pickCut(rs, unsafe, pos, limit)
	return strings.TrimSpace(string(rs[pos:cut])), cut, nil
}

// pickCut returns the end (exclusive) of the piece starting at pos that holds
// at most budget runes.
func pickCut(rs []rune, unsafe []bool, pos, budget int) int {
	end := pos + budget
	if end >= len(rs) {
		return len(rs)
	}
	for i := end; i > pos; i-- {
		if !unsafe[i] && (rs[i] == '\n' || rs[i-1] == '\n') {
			return i
		}
	}
	for i := end; i > pos; i-- {
		if !unsafe[i] && (isBlank(rs[i]) || isBlank(rs[i-1])) {
			return i
		}
	}
	for i := end; i > pos; i-- {
		if !unsafe[i] {
			return i
		}
	}
	return end
}

func isBlank(r rune) bool {
	return r != '\n' && unicode.IsSpace(r)
}

// unsafeCuts marks every position whose cut would split a tag or an entity.
// unsafe[i] refers to cutting right before rs[i].
func unsafeCuts(rs []rune) []bool {
	unsafe := make([]bool, len(rs)+1)
	for i := 0; i < len(rs); i++ {
		var end int
		switch rs[i] {
		case '<':
			end = tagEnd(rs, i)
		case '&':
			end = entityEnd(rs, i)
		}
		if end <= 0 {
			continue
		}
		for j := i + 1; j < end; j++ {
			unsafe[j] = true
		}
		i = end - 1
	}
	return unsafe
}

// tagEnd returns the index right after the '>' closing the tag that starts at
// i, or -1 when rs[i:] does not open a tag.
func tagEnd(rs []rune, i int) int {
	j := i + 1
	if j < len(rs) && rs[j] == '/' {
		j++
	}
	if j >= len(rs) || !isASCIILetter(rs[j]) {
		return -1
	}
	for ; j < len(rs) && j-i < 512; j++ {
		switch rs[j] {
		case '>':
			return j + 1
		case '<', '\n':
			return -1
		}
	}
	return -1
}

// entityEnd returns the index right after the ';' of an entity such as
// &amp; or &#39; starting at i, or -1.
func entityEnd(rs []rune, i int) int {
	j := i + 1
	if j < len(rs) && rs[j] == '#' {
		j++
	}
	start := j
	for ; j < len(rs) && j-i < 32; j++ {
		r := rs[j]
		if r == ';' {
			if j == start {
				return -1
			}
			return j + 1
		}
		if !isASCIILetter(r) && !(r >= '0' && r <= '9') {
			return -1
		}
	}
	return -1
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func trackTags(open []openTag, body string) []openTag {
	stack := append([]openTag(nil), open...)
	for _, m := range htmlTagRE.FindAllStringSubmatch(body, -1) {
		raw, name := m[0], strings.ToLower(m[1])
		if strings.HasPrefix(raw, "</") {
			for k := len(stack) - 1; k >= 0; k-- {
				if stack[k].name == name {
					stack = stack[:k]
					break
				}
			}
			continue
		}
		if strings.HasSuffix(raw, "/>") {
			continue
		}
		stack = append(stack, openTag{name: name, raw: raw})
	}
	return stack
}

func reopenTags(open []openTag) string {
	var b strings.Builder
	for _, t := range open {
		b.WriteString(t.raw)
	}
	return b.String()
}

func closeTags(open []openTag) string {
	var b strings.Builder
	for k := len(open) - 1; k >= 0; k-- {
		b.WriteString("</" + open[k].name + ">")
	}
	return b.String()
}

func stripHTMLTags(s string) string {
	return htmlTagRE.ReplaceAllString(s, "")
}
