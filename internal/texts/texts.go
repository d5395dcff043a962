// Package texts holds the fixed user-facing replies of the bot.
package texts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Welcome        string `yaml:"welcome"`
	Refusal        string `yaml:"refusal"`
	Apology        string `yaml:"apology"`
	NewChatCleared string `yaml:"newchat_cleared"`
	NewChatEmpty   string `yaml:"newchat_empty"`
	SearchUsage    string `yaml:"search_usage"`
	TextOnly       string `yaml:"text_only"`
	UnknownCommand string `yaml:"unknown_command"`
	EmptyResponse  string `yaml:"empty_response"`
}

// Default returns the embedded catalog.
func Default() Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		panic(fmt.Sprintf("texts: embedded catalog: %v", err))
	}
	return c
}

// Load returns the embedded catalog with any non-empty entries of the YAML
// file at path applied on top. An empty path returns the defaults.
func Load(path string) (Catalog, error) {
	c := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read texts file: %w", err)
	}
	var override Catalog
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil {
		return Catalog{}, fmt.Errorf("parse texts file %s: %w", path, err)
	}
	return c.merge(override), nil
}

func (c Catalog) merge(o Catalog) Catalog {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&c.Welcome, o.Welcome)
	pick(&c.Refusal, o.Refusal)
	pick(&c.Apology, o.Apology)
	pick(&c.NewChatCleared, o.NewChatCleared)
	pick(&c.NewChatEmpty, o.NewChatEmpty)
	pick(&c.SearchUsage, o.SearchUsage)
	pick(&c.TextOnly, o.TextOnly)
	pick(&c.UnknownCommand, o.UnknownCommand)
	pick(&c.EmptyResponse, o.EmptyResponse)
	return c
}
