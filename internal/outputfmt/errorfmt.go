package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	absoluteURLInTextRE = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// Telegram embeds the bot token in the request path: /bot123456:AA.../sendMessage
	botTokenPathRE = regexp.MustCompile(`bot[0-9]{3,}:[A-Za-z0-9_-]{10,}`)
	openAIKeyRE    = regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`)
)

// FormatErrorForDisplay renders err for logs and user-facing channels without
// leaking hosts, bot tokens or API keys.
func FormatErrorForDisplay(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeErrorText(err.Error())
}

// SanitizeErrorText removes URL hosts from arbitrary text while keeping
// path/query/fragment details, then redacts credentials.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	out := absoluteURLInTextRE.ReplaceAllStringFunc(raw, sanitizeURLInText)
	out = botTokenPathRE.ReplaceAllString(out, "bot[redacted]")
	return openAIKeyRE.ReplaceAllString(out, "sk-[redacted]")
}

func sanitizeURLInText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if q := redactSensitiveQuery(u.Query()); q != "" {
		path += "?" + q
	}
	if frag := strings.TrimSpace(u.EscapedFragment()); frag != "" {
		path += "#" + frag
	}
	return path
}

func redactSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, "[redacted]")
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	n := strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", "")
	if n == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}
