package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pugjinja/pugjinja/pkg/ast"
)

// ErrIncludeDepthExceeded is returned when includes nest deeper than
// Options.MaxIncludeDepth.
var ErrIncludeDepthExceeded = errors.New("include depth exceeded")

// UnknownNodeKindError is returned for a node the generator has no rule for.
type UnknownNodeKindError struct {
	Node ast.Node
}

func (e *UnknownNodeKindError) Error() string {
	return fmt.Sprintf("unknown node kind %T", e.Node)
}

// IncludeResolutionError is returned when an included file cannot be read.
// Path is the resolved filesystem path that was tried.
type IncludeResolutionError struct {
	Path string
	Err  error
}

func (e *IncludeResolutionError) Error() string {
	return fmt.Sprintf("include path doesn't exist (%s): %v", e.Path, e.Err)
}

func (e *IncludeResolutionError) Unwrap() error { return e.Err }

// IncludeCycleError is returned when a file includes itself, directly or
// through other files. Stack lists the resolved paths from the outermost
// include to the repeated one.
type IncludeCycleError struct {
	Path  string
	Stack []string
}

func (e *IncludeCycleError) Error() string {
	return fmt.Sprintf("include cycle: %s -> %s", strings.Join(e.Stack, " -> "), e.Path)
}
