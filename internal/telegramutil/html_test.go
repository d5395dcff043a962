package telegramutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		status RenderStatus
		text   string
		reason string
	}{
		{name: "plain text", in: "hello", status: Rendered, text: "hello"},
		{name: "supported tags", in: "<b>bold</b> &amp; <i>it</i>", status: Rendered, text: "<b>bold</b> &amp; <i>it</i>"},
		{name: "code block with language", in: `<pre><code class="language-go">x</code></pre>`, status: Rendered, text: `<pre><code class="language-go">x</code></pre>`},
		{name: "spoiler span", in: `<span class="tg-spoiler">x</span>`, status: Rendered, text: `<span class="tg-spoiler">x</span>`},
		{name: "numeric entity", in: "&#128512; ok", status: Rendered, text: "&#128512; ok"},
		{name: "unclosed tag", in: "<b>bold", status: NeedsPlainFallback, text: "bold", reason: "unclosed"},
		{name: "crossed tags", in: "<b><i>x</b></i>", status: NeedsPlainFallback, text: "x", reason: "unexpected"},
		{name: "unsupported tag", in: "<div>x</div>", status: NeedsPlainFallback, text: "x", reason: "unsupported"},
		{name: "plain span", in: "<span>x</span>", status: NeedsPlainFallback, text: "x", reason: "tg-spoiler"},
		{name: "self closing", in: "a<br/>b", status: NeedsPlainFallback, text: "ab", reason: "unsupported"},
		{name: "bare less-than", in: "a < b", status: NeedsPlainFallback, text: "a < b", reason: "bare '<'"},
		{name: "bare ampersand", in: "AT&T", status: NeedsPlainFallback, text: "AT&T", reason: "bare '&'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderHTML(tc.in)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.text, got.Text)
			if tc.reason != "" {
				assert.Contains(t, got.Reason, tc.reason)
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a < b", StripTags("<b>a &lt; b</b>"))
	assert.Equal(t, "line one\nline two", StripTags("<i>line one</i>\n<code>line two</code>"))
	assert.Equal(t, "", StripTags(""))
}

func TestRenderStatusString(t *testing.T) {
	assert.Equal(t, "rendered", Rendered.String())
	assert.Equal(t, "needs_plain_fallback", NeedsPlainFallback.String())
}
