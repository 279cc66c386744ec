package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pugjinja/pugjinja/pkg/ast"
)

// SearchDirs are the directories include paths are resolved against.
// Paths starting with "/" resolve under BaseDir, all others under FileDir.
type SearchDirs struct {
	FileDir string
	BaseDir string
}

// FormatPath appends ext to path when its base name has no extension.
func FormatPath(path, ext string) string {
	if strings.Contains(filepath.Base(path), ".") {
		return path
	}
	return path + ext
}

// ResolveInclude maps an include path to the file it names.
func (c *Compiler) ResolveInclude(path string) string {
	dir := c.opts.SearchDirs.FileDir
	if strings.HasPrefix(path, "/") {
		dir = c.opts.SearchDirs.BaseDir
		// Join would keep the root otherwise.
		path = path[1:]
	}
	return filepath.Join(dir, FormatPath(path, c.opts.Extension))
}

func (c *Compiler) visitInclude(n *ast.Include) error {
	path := c.ResolveInclude(n.Path)
	key := includeKey(path)

	if slices.Contains(c.includes, key) {
		return &IncludeCycleError{Path: path, Stack: slices.Clone(c.includes)}
	}
	if len(c.includes) >= c.opts.MaxIncludeDepth {
		return fmt.Errorf("including %s: %w", path, ErrIncludeDepthExceeded)
	}

	c.log.Debug("resolving include", "path", n.Path, "file", path, "depth", len(c.includes)+1)
	src, err := os.ReadFile(path)
	if err != nil {
		return &IncludeResolutionError{Path: path, Err: err}
	}
	block, err := c.opts.Parser.Parse(src)
	if err != nil {
		return fmt.Errorf("parsing include %s: %w", path, err)
	}

	c.includes = append(c.includes, key)
	defer func() { c.includes = c.includes[:len(c.includes)-1] }()
	return c.visit(block)
}

// includeKey normalizes a path for cycle detection.
func includeKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
