package promptprofile

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dchen327/telegram-chatbot/internal/prompttmpl"
)

//go:embed prompts/system.tmpl
var systemTemplateSource string

//go:embed prompts/search.tmpl
var searchTemplateSource string

var (
	systemTemplate = prompttmpl.MustParse("system_instruction", systemTemplateSource, nil)
	searchTemplate = prompttmpl.MustParse("search_input", searchTemplateSource, nil)
)

// DefaultRules keep replies short and readable on a phone screen.
var DefaultRules = []string{
	"Be concise and to the point; replies are read on mobile devices.",
	"Do not include images, image markdown or image references.",
	"Use simple formatting only: bold, italic, inline code, short lists and code blocks.",
	"Do not include links or URLs in your replies.",
	"Keep responses brief but informative.",
}

type SystemOptions struct {
	// PersonaPath optionally points at a Markdown file whose content is added
	// as the assistant persona. Missing, empty or draft files are skipped.
	PersonaPath string
	Rules       []string
	Logger      *slog.Logger
}

type systemTemplateData struct {
	Persona string
	Rules   []string
}

// SystemInstruction renders the instruction attached to every new
// conversation.
func SystemInstruction(opts SystemOptions) (string, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	data := systemTemplateData{Rules: make([]string, 0, len(rules))}
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			data.Rules = append(data.Rules, r)
		}
	}
	if path := strings.TrimSpace(opts.PersonaPath); path != "" {
		doc, status := loadPersonaDoc(path, log)
		if doc != "" {
			data.Persona = doc
		}
		log.Info("persona_status", "path", path, "status", status)
	}
	out, err := prompttmpl.Render(systemTemplate, data)
	if err != nil {
		return "", fmt.Errorf("render system instruction: %w", err)
	}
	return out, nil
}

type searchTemplateData struct {
	Query string
}

// SearchInput wraps a /search query so the model answers at once without
// follow-up questions or links.
func SearchInput(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}
	out, err := prompttmpl.Render(searchTemplate, searchTemplateData{Query: query})
	if err != nil {
		return "", fmt.Errorf("render search input: %w", err)
	}
	return out, nil
}
