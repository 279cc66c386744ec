package jinja2

import (
	"fmt"
)

// Source is template text in a given syntax. A zero Syntax means
// DefaultSyntax.
type Source struct {
	Text   string
	Syntax Syntax
}

// Check parses the source and returns the first syntax error.
func (s Source) Check() error {
	if _, err := ParseSyntax(s.Text, s.Syntax); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

// Render renders the source without a loader, so it may not extend or
// include other templates.
func (s Source) Render(ctx Context) (string, error) {
	doc, err := ParseSyntax(s.Text, s.Syntax)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	r := NewRenderer(nil)
	r.Syntax = s.Syntax
	return r.Render(doc, ctx)
}
