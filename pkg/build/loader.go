package build

import (
	"fmt"
	"path/filepath"

	"github.com/pugjinja/pugjinja/pkg/compiler"
	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

// Loader is a jinja2.Loader that compiles tree files on load. Files with
// other extensions are returned as they are. Relative includes of a tree
// file resolve next to it and absolute-style ones under the first of Dirs.
type Loader struct {
	Dirs     []string
	Compiler compiler.Options
	Metrics  *Metrics
}

func (l Loader) Load(name string) (string, error) {
	files := jinja2.FileLoader{Dirs: l.Dirs}
	path, err := files.Find(name)
	if err != nil {
		return "", err
	}
	ext := l.Compiler.Extension
	if ext == "" {
		ext = compiler.DefaultExtension
	}
	if filepath.Ext(path) != ext {
		return files.Load(name)
	}

	opts := l.Compiler
	opts.SearchDirs.FileDir = filepath.Dir(path)
	if opts.SearchDirs.BaseDir == "" && len(l.Dirs) > 0 {
		opts.SearchDirs.BaseDir = l.Dirs[0]
	}
	b := New(Options{Compiler: opts, Metrics: l.Metrics, Logger: opts.Logger})
	src, err := b.CompileFile(path)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", name, err)
	}
	return src, nil
}
