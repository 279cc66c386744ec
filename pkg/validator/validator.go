// Package validator holds small combinators for validating configuration.
package validator

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

func InRange(field, lo, hi int, description string) error {
	if field < lo || field > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", description, lo, hi, field)
	}
	return nil
}

// Extension checks that field looks like ".ext".
func Extension(field, description string) error {
	if len(field) < 2 || field[0] != '.' || strings.ContainsAny(field[1:], `./\`) {
		return fmt.Errorf("%s must look like \".ext\", got %q", description, field)
	}
	return nil
}

// Distinct checks that two delimiters differ and neither contains the other.
func Distinct(a, b, description string) error {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return fmt.Errorf("%s must be distinct, got %q and %q", description, a, b)
	}
	return nil
}

// HasNoStatementDelimiters rejects values that collide with the statement
// and comment delimiters of the target templates.
func HasNoStatementDelimiters(field string, description string) error {
	for _, d := range []string{"{%", "%}", "{#", "#}"} {
		if strings.Contains(field, d) {
			return fmt.Errorf("%s must not contain %q", description, d)
		}
	}
	return nil
}

// DirExists checks that field names an existing directory. Empty is allowed.
func DirExists(field, description string) error {
	if field == "" {
		return nil
	}
	info, err := os.Stat(field)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %s is not a directory", description, field)
	}
	return nil
}
