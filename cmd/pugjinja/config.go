package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"go.yaml.in/yaml/v4"

	"github.com/pugjinja/pugjinja/pkg/build"
	"github.com/pugjinja/pugjinja/pkg/compiler"
	"github.com/pugjinja/pugjinja/pkg/jinja2"
	"github.com/pugjinja/pugjinja/pkg/validator"
)

const defaultConfigPath = "pugjinja.yaml"

type searchDirsConfig struct {
	FileDir string `yaml:"file_dir,omitempty"`
	BaseDir string `yaml:"base_dir,omitempty"`
}

type config struct {
	VariableStart   string           `yaml:"variable_start,omitempty"`
	VariableEnd     string           `yaml:"variable_end,omitempty"`
	Extension       string           `yaml:"extension,omitempty"`
	OutputExtension string           `yaml:"output_extension,omitempty"`
	SearchDirs      searchDirsConfig `yaml:"search_dirs,omitempty"`
	MaxIncludeDepth int              `yaml:"max_include_depth,omitempty"`
	Jobs            int              `yaml:"jobs,omitempty"`
}

// loadConfig reads the config file at path. A missing file is only an error
// when required is set; otherwise the defaults are used.
func loadConfig(path string, required bool) (config, error) {
	var cfg config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		slog.Debug("no config file, using defaults", "path", path)
	case err != nil:
		return cfg, fmt.Errorf("loading config: %w", err)
	default:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return cfg, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding config file: %w", err)
	}
	return nil
}

func (c *config) applyDefaults() {
	if c.VariableStart == "" {
		c.VariableStart = jinja2.DefaultSyntax.VariableStart
	}
	if c.VariableEnd == "" {
		c.VariableEnd = jinja2.DefaultSyntax.VariableEnd
	}
	if c.Extension == "" {
		c.Extension = compiler.DefaultExtension
	}
	if c.OutputExtension == "" {
		c.OutputExtension = build.DefaultOutputExtension
	}
	if c.MaxIncludeDepth == 0 {
		c.MaxIncludeDepth = compiler.DefaultMaxIncludeDepth
	}
}

func (c config) validate() error {
	return validator.All(
		validator.NotEmpty(c.VariableStart, "variable_start"),
		validator.NotEmpty(c.VariableEnd, "variable_end"),
		validator.Distinct(c.VariableStart, c.VariableEnd, "variable_start and variable_end"),
		validator.HasNoStatementDelimiters(c.VariableStart, "variable_start"),
		validator.HasNoStatementDelimiters(c.VariableEnd, "variable_end"),
		validator.Extension(c.Extension, "extension"),
		validator.Extension(c.OutputExtension, "output_extension"),
		validator.Distinct(c.Extension, c.OutputExtension, "extension and output_extension"),
		validator.InRange(c.MaxIncludeDepth, 1, 1000, "max_include_depth"),
		validator.InRange(c.Jobs, 0, 1024, "jobs"),
		validator.DirExists(c.SearchDirs.FileDir, "search_dirs.file_dir"),
		validator.DirExists(c.SearchDirs.BaseDir, "search_dirs.base_dir"),
	)
}

func (c config) compilerOptions(logger *slog.Logger) compiler.Options {
	return compiler.Options{
		VariableStart:   c.VariableStart,
		VariableEnd:     c.VariableEnd,
		Extension:       c.Extension,
		MaxIncludeDepth: c.MaxIncludeDepth,
		SearchDirs: compiler.SearchDirs{
			FileDir: c.SearchDirs.FileDir,
			BaseDir: c.SearchDirs.BaseDir,
		},
		Logger: logger,
	}
}

// syntax is the template syntax that compiled output is rendered with.
func (c config) syntax() jinja2.Syntax {
	syn := jinja2.DefaultSyntax
	syn.VariableStart = c.VariableStart
	syn.VariableEnd = c.VariableEnd
	return syn
}

// loadData reads a YAML mapping of template variables.
func loadData(path string) (jinja2.Context, error) {
	if path == "" {
		return jinja2.Context{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decoding data file %s: %w", path, err)
	}
	return jinja2.NewContextFromAny(data), nil
}
