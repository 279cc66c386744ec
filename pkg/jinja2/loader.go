package jinja2

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", ErrTemplateNotFound{name}
}

// FileLoader loads templates from the first of Dirs that contains them.
// Names are slash-separated and may not leave the directory.
type FileLoader struct {
	Dirs []string
}

func (l FileLoader) Load(name string) (string, error) {
	path, err := l.Find(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Find returns the path of the file that Load would read for name.
func (l FileLoader) Find(name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimPrefix(name, "/"))
	if !filepath.IsLocal(clean) {
		return "", ErrTemplateNotFound{name}
	}
	for _, dir := range l.Dirs {
		path := filepath.Join(dir, clean)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			continue
		}
		return path, nil
	}
	return "", ErrTemplateNotFound{name}
}

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }
