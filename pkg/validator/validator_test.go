package validator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCombinators(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		err  error
		ok   bool
	}{
		{"not empty", NotEmpty("x", "field"), true},
		{"empty", NotEmpty("", "field"), false},
		{"allowed", MatchesAllowed("a", []string{"a", "b"}, "mode"), true},
		{"not allowed", MatchesAllowed("c", []string{"a", "b"}, "mode"), false},
		{"in range", InRange(4, 1, 8, "jobs"), true},
		{"below range", InRange(0, 1, 8, "jobs"), false},
		{"extension", Extension(".pug", "ext"), true},
		{"extension without dot", Extension("pug", "ext"), false},
		{"extension with path", Extension("./x", "ext"), false},
		{"distinct", Distinct("[[", "]]", "delimiters"), true},
		{"same", Distinct("{{", "{{", "delimiters"), false},
		{"overlapping", Distinct("<", "<<", "delimiters"), false},
		{"no statement delimiters", HasNoStatementDelimiters("{{", "start"), true},
		{"statement delimiter", HasNoStatementDelimiters("{%", "start"), false},
		{"dir exists", DirExists(dir, "dir"), true},
		{"dir empty", DirExists("", "dir"), true},
		{"dir missing", DirExists(filepath.Join(dir, "nope"), "dir"), false},
		{"dir is file", DirExists(file, "dir"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if (tc.err == nil) != tc.ok {
				t.Fatalf("ok=%v but err=%v", tc.ok, tc.err)
			}
		})
	}
}

func TestAllReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	if err := All(nil, first, errors.New("second")); err != first {
		t.Fatalf("got %v, want first", err)
	}
	if err := All(nil, nil); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}
