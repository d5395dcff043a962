// Package prompttmpl parses and renders the text/template prompt files
// embedded by other packages.
package prompttmpl

import (
	"bytes"
	"strings"
	"text/template"
)

// baseFuncs are available to every prompt template; callers may add or
// override entries.
var baseFuncs = template.FuncMap{
	"add":  func(a, b int) int { return a + b },
	"trim": strings.TrimSpace,
	"join": strings.Join,
}

func Parse(name, source string, funcs template.FuncMap) (*template.Template, error) {
	merged := template.FuncMap{}
	for k, v := range baseFuncs {
		merged[k] = v
	}
	for k, v := range funcs {
		merged[k] = v
	}
	return template.New(name).Option("missingkey=error").Funcs(merged).Parse(source)
}

func MustParse(name, source string, funcs template.FuncMap) *template.Template {
	t, err := Parse(name, source, funcs)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes t and trims surrounding whitespace from the result.
func Render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
