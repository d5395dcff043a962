package outputfmt

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anyURLRE = regexp.MustCompile(`(?i)https?://|ftp://|\bwww\.`)

func TestStripLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text untouched", in: "Hello world", want: "Hello world"},
		{name: "markup untouched", in: "a <b>bold</b> &amp; <code>x</code>", want: "a <b>bold</b> &amp; <code>x</code>"},
		{name: "spacing untouched without links", in: "line1\n\nline2  spaced", want: "line1\n\nline2  spaced"},
		{name: "markdown link keeps label", in: "[OpenAI](https://openai.com) is here", want: "OpenAI is here"},
		{name: "parenthesized target", in: "See [docs](https://example.com/a_(b)) now", want: "See docs now"},
		{name: "link with title", in: `Read [this](https://example.com "Example") first`, want: "Read this first"},
		{name: "image becomes alt text", in: "![logo](https://example.com/y.png)", want: "logo"},
		{name: "bare url removed", in: "Visit https://example.com for details", want: "Visit for details"},
		{name: "sentence punctuation kept", in: "Visit https://example.com.", want: "Visit."},
		{name: "www url removed", in: "Go to www.example.org, then rest", want: "Go to, then rest"},
		{name: "parenthesized url removed", in: "source (https://example.com/page)", want: "source"},
		{name: "trailing url removed", in: "<b>Docs:</b> https://example.com/x", want: "<b>Docs:</b>"},
		{name: "adjacent tags survive", in: "see <code>https://x.io/a</code> ok", want: "see <code></code> ok"},
		{name: "angle autolink removed", in: "ref <https://example.com> end", want: "ref end"},
		{name: "escaped angle autolink removed", in: "link: &lt;https://example.com&gt;", want: "link:"},
		{name: "http scheme", in: "old http://example.com/a?b=c site", want: "old site"},
		{name: "url label stripped too", in: "[https://x.com](https://x.com)", want: ""},
		{name: "dangling scheme removed", in: "Go to http:// https://a.com, then stop", want: "Go to, then stop"},
		{name: "dangling www removed", in: ")www.\twww.y.com.", want: ").."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := StripLinks(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Falsef(t, anyURLRE.MatchString(got), "url survived in %q", got)
			assert.Equal(t, got, StripLinks(got), "not idempotent")
		})
	}
}

func TestStripLinks_MultilineAnswer(t *testing.T) {
	in := "<b>Weather in NYC</b>\n\nSunny, 21°C. Source: https://weather.example.com/nyc\n\n• Wind: 5 km/h ([details](https://weather.example.com/wind))"
	got := StripLinks(in)

	require.False(t, anyURLRE.MatchString(got))
	assert.Contains(t, got, "<b>Weather in NYC</b>")
	assert.Contains(t, got, "Sunny, 21°C. Source:\n\n")
	assert.Contains(t, got, "• Wind: 5 km/h (details)")
}

func TestStripLinks_RandomInputsAreIdempotent(t *testing.T) {
	fragments := []string{
		"http://", "https://a.com", "HTTPS://b.io/x_(y)", "ftp://f.net", "www.", "www.y.com", "www",
		"[label](https://u.v)", "[x](", "](", "<https://c.d>", "&lt;www.e.f&gt;", "&lt;", "&gt;",
		"<b>", "</b>", "<code>", "</code>", "word", "Go", "to", "é",
		" ", " ", "\t", "\n", ",", ".", ";", ":", "!", "?", "(", ")", "[", "]", "\"", "'", "*", "_",
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20000; i++ {
		var b strings.Builder
		for n := rng.IntN(12) + 1; n > 0; n-- {
			b.WriteString(fragments[rng.IntN(len(fragments))])
		}
		in := b.String()
		once := StripLinks(in)
		if twice := StripLinks(once); twice != once {
			t.Fatalf("StripLinks(%q) = %q, second pass gives %q", in, once, twice)
		}
		if anyURLRE.MatchString(once) {
			t.Fatalf("StripLinks(%q) = %q still holds a url", in, once)
		}
	}
}
