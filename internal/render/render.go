// Package render turns named templates plus bindings into text.
package render

import (
	"fmt"

	"github.com/cbroglie/mustache"
)

// Renderer renders a template string against bindings.
type Renderer interface {
	Render(template string, bindings map[string]any) (string, error)
}

// Mustache renders {{name}} templates. Output is never HTML-escaped since
// it goes into plain-text mail.
type Mustache struct{}

func (Mustache) Render(template string, bindings map[string]any) (string, error) {
	tmpl, err := mustache.ParseStringRaw(template, true)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	out, err := tmpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

// Set renders several templates with the same bindings, stopping at the
// first failure.
func Set(r Renderer, templates map[string]string, bindings map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(templates))
	for name, tmpl := range templates {
		s, err := r.Render(tmpl, bindings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}
