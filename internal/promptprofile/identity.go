package promptprofile

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type personaFrontmatter struct {
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
}

// loadPersonaDoc returns the persona body and a short status for logging.
// A persona marked "status: draft" in its frontmatter is ignored.
func loadPersonaDoc(path string, log *slog.Logger) (string, string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "missing"
		}
		log.Warn("persona_load_failed", "path", path, "error", err.Error())
		return "", "error"
	}
	fm, body, hasFrontmatter := splitFrontmatter(string(raw))
	if hasFrontmatter {
		var meta personaFrontmatter
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			log.Warn("persona_frontmatter_invalid", "path", path, "error", err.Error())
		}
		if strings.EqualFold(strings.TrimSpace(meta.Status), "draft") {
			return "", "draft"
		}
		if name := strings.TrimSpace(meta.Name); name != "" {
			body = "Your name is " + name + ".\n" + body
		}
	}
	content := strings.TrimSpace(body)
	if content == "" {
		return "", "empty"
	}
	return content, "loaded"
}

// splitFrontmatter splits a leading "---" delimited YAML block from the body.
func splitFrontmatter(contents string) (string, string, bool) {
	lines := strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", contents, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", contents, false
}
