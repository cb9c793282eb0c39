package render

import (
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Template wraps a parsed job template. The engine is deliberately
// dumb: it substitutes values from a flat string map and errors on any
// key the context does not carry.
type Template struct {
	t *template.Template
}

// Load parses the template file at path.
func Load(path string) (*Template, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return Parse(path, string(text))
}

// Parse parses template text under the given name.
func Parse(name, text string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{t: t}, nil
}

// Render substitutes the context into the template and returns the
// rendered text.
func (t *Template) Render(ctx map[string]string) (string, error) {
	var b strings.Builder
	if err := t.t.Execute(&b, ctx); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return b.String(), nil
}
