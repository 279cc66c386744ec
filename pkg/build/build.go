// Package build compiles directories of tree files into template sources.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pugjinja/pugjinja/pkg/compiler"
	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

const DefaultOutputExtension = ".html"

// Options configures a Builder.
type Options struct {
	// SrcDir is scanned recursively for files with Compiler.Extension.
	SrcDir string
	// OutDir receives one output file per source, at the same relative path.
	OutDir string
	// OutputExtension replaces the source extension of written files.
	OutputExtension string
	// Compiler is used for every file. SearchDirs.FileDir is set per file;
	// an empty SearchDirs.BaseDir defaults to SrcDir.
	Compiler compiler.Options
	// Check parses every generated source before writing it, so unbalanced
	// statements from raw code fail the build instead of the render.
	Check bool
	// Jobs bounds the number of concurrent compiles. Zero means GOMAXPROCS.
	Jobs    int
	Logger  *slog.Logger
	Metrics *Metrics
}

// Builder compiles a source tree. A Builder may run several builds, one
// at a time.
type Builder struct {
	opts Options
	log  *slog.Logger
	mu   sync.Mutex
}

func New(opts Options) *Builder {
	if opts.OutputExtension == "" {
		opts.OutputExtension = DefaultOutputExtension
	}
	if opts.Compiler.Extension == "" {
		opts.Compiler.Extension = compiler.DefaultExtension
	}
	if opts.Compiler.SearchDirs.BaseDir == "" {
		opts.Compiler.SearchDirs.BaseDir = opts.SrcDir
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Compiler.Logger == nil {
		opts.Compiler.Logger = opts.Logger
	}
	return &Builder{opts: opts, log: opts.Logger}
}

// FileError is the failure of one source file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// Result summarizes a build.
type Result struct {
	Compiled []string
	Failed   []*FileError
	Duration time.Duration
}

// Err joins the file errors of r, or returns nil.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return fmt.Errorf("%d of %d files failed: %w", len(r.Failed), len(r.Failed)+len(r.Compiled), errors.Join(errs...))
}

// Sources lists the source files under SrcDir in lexical order. Hidden
// files and directories are skipped.
func (b *Builder) Sources() ([]string, error) {
	var files []string
	err := filepath.WalkDir(b.opts.SrcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != b.opts.SrcDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// Keep the output tree out of the sources when it is nested.
			if b.opts.OutDir != "" && path != b.opts.SrcDir && sameDir(path, b.opts.OutDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == b.opts.Compiler.Extension {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", b.opts.SrcDir, err)
	}
	return files, nil
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// Build compiles every source file and writes the outputs. File failures
// are collected in the result; the returned error is reserved for
// failures of the build itself, such as an unreadable source directory or
// a cancelled context.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	files, err := b.Sources()
	if err != nil {
		b.opts.Metrics.observeBuild(err)
		return Result{}, err
	}

	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Jobs)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := b.compileAndWrite(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.log.Warn("compile failed", "file", path, "error", err)
				res.Failed = append(res.Failed, &FileError{Path: path, Err: err})
				return nil
			}
			res.Compiled = append(res.Compiled, path)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	slices.Sort(res.Compiled)
	slices.SortFunc(res.Failed, func(a, b *FileError) int { return strings.Compare(a.Path, b.Path) })
	res.Duration = time.Since(start)

	if err == nil {
		err = res.Err()
		b.opts.Metrics.observeBuild(err)
		b.log.Info("build finished", "compiled", len(res.Compiled), "failed", len(res.Failed), "duration", res.Duration)
		return res, nil
	}
	b.opts.Metrics.observeBuild(err)
	return res, err
}

// CompileFile compiles one source file and returns the generated source.
func (b *Builder) CompileFile(path string) (string, error) {
	opts := b.opts.Compiler
	opts.SearchDirs.FileDir = filepath.Dir(path)
	start := time.Now()
	out, err := compiler.CompileFile(path, opts)
	b.opts.Metrics.observeCompile(err, time.Since(start))
	return out, err
}

func (b *Builder) compileAndWrite(path string) error {
	out, err := b.CompileFile(path)
	if err != nil {
		return err
	}
	if b.opts.Check {
		if err := b.checkOutput(out); err != nil {
			return err
		}
	}
	dst, err := b.OutputPath(path)
	if err != nil {
		return err
	}
	if err := writeFile(dst, []byte(out)); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	b.log.Debug("compiled", "file", path, "output", dst)
	return nil
}

func (b *Builder) checkOutput(out string) error {
	src := jinja2.Source{Text: out, Syntax: jinja2.Syntax{
		VariableStart: b.opts.Compiler.VariableStart,
		VariableEnd:   b.opts.Compiler.VariableEnd,
	}}
	if err := src.Check(); err != nil {
		return fmt.Errorf("checking output: %w", err)
	}
	return nil
}

// OutputPath maps a source file to the file its output is written to.
func (b *Builder) OutputPath(src string) (string, error) {
	rel, err := filepath.Rel(b.opts.SrcDir, src)
	if err != nil {
		return "", err
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is outside %s", src, b.opts.SrcDir)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + b.opts.OutputExtension
	return filepath.Join(b.opts.OutDir, rel), nil
}

// writeFile replaces dst through a temporary file so readers never see a
// partial output.
func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
