// Package compiler turns a parsed Pug-style template tree into Jinja-style
// template source.
package compiler

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/pugjinja/pugjinja/pkg/ast"
)

// Names the generated source expects the rendering environment to provide.
const (
	AttrsFunc    = "__pug_attrs"
	IterFunc     = "__pug_iter"
	CallerName   = "caller"
	CallerPrefix = "__pug_caller_"
)

const (
	DefaultExtension       = ".pug"
	DefaultMaxIncludeDepth = 64
)

// autoClose lists the statement keywords whose bodies get an explicit
// end tag when they come from an unbuffered Code node with a block.
var autoClose = []string{
	"if", "for", "block", "filter", "autoescape", "with", "trans",
	"spaceless", "comment", "cache", "macro", "localize", "compress", "raw",
}

var voidTags = []string{
	"area", "base", "br", "col", "embed", "hr", "img", "input",
	"link", "meta", "param", "source", "track", "wbr",
}

var doctypes = map[string]string{
	"5":            `<!DOCTYPE html>`,
	"html":         `<!DOCTYPE html>`,
	"xml":          `<?xml version="1.0" encoding="utf-8" ?>`,
	"default":      `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">`,
	"transitional": `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">`,
	"strict":       `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">`,
	"frameset":     `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Frameset//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-frameset.dtd">`,
	"1.1":          `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">`,
	"basic":        `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML Basic 1.1//EN" "http://www.w3.org/TR/xhtml-basic/xhtml-basic11.dtd">`,
	"mobile":       `<!DOCTYPE html PUBLIC "-//WAPFORUM//DTD XHTML Mobile 1.2//EN" "http://www.openmobilealliance.org/tech/DTD/xhtml-mobile12.dtd">`,
}

// Parser turns template source into a tree. Included files go through it.
type Parser interface {
	Parse(src []byte) (*ast.Block, error)
}

// Options configures a Compiler. Zero values select the defaults.
type Options struct {
	VariableStart string
	VariableEnd   string
	SearchDirs    SearchDirs
	Extension     string
	Parser        Parser
	// VarProcessor rewrites the expression of buffered code before output.
	VarProcessor    func(string) string
	MaxIncludeDepth int
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.VariableStart == "" {
		o.VariableStart = "{{"
	}
	if o.VariableEnd == "" {
		o.VariableEnd = "}}"
	}
	if o.SearchDirs.FileDir == "" {
		o.SearchDirs.FileDir = "."
	}
	if o.SearchDirs.BaseDir == "" {
		o.SearchDirs.BaseDir = "."
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if o.Parser == nil {
		o.Parser = ast.Parser{}
	}
	if o.VarProcessor == nil {
		o.VarProcessor = func(s string) string { return s }
	}
	if o.MaxIncludeDepth <= 0 {
		o.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Compiler generates target source for one tree. Use a new instance per
// compile; instances are not safe for concurrent use.
type Compiler struct {
	opts Options
	log  *slog.Logger

	buf bytes.Buffer
	// mixing counts the mixin definitions and calls enclosing the node
	// being visited.
	mixing   int
	terse    bool
	includes []string
}

func New(opts Options) *Compiler {
	opts = opts.withDefaults()
	return &Compiler{opts: opts, log: opts.Logger}
}

// Compile is a shorthand for New(opts).Compile(root).
func Compile(root ast.Node, opts Options) (string, error) {
	return New(opts).Compile(root)
}

// CompileFile reads, parses and compiles the tree file at path. Relative
// includes resolve next to the file unless opts.SearchDirs.FileDir is set.
func CompileFile(path string, opts Options) (string, error) {
	if opts.SearchDirs.FileDir == "" {
		opts.SearchDirs.FileDir = filepath.Dir(path)
	}
	c := New(opts)
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	root, err := c.opts.Parser.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	c.includes = append(c.includes, includeKey(path))
	out, err := c.Compile(root)
	if err != nil {
		return "", fmt.Errorf("compiling %s: %w", path, err)
	}
	return out, nil
}

// Compile walks root and returns the generated source.
func (c *Compiler) Compile(root ast.Node) (string, error) {
	if err := c.visit(root); err != nil {
		return "", err
	}
	return c.buf.String(), nil
}

func (c *Compiler) write(s ...string) {
	for _, part := range s {
		c.buf.WriteString(part)
	}
}

func (c *Compiler) writef(format string, a ...any) {
	fmt.Fprintf(&c.buf, format, a...)
}

// variable wraps expr in the variable delimiters.
func (c *Compiler) variable(expr string) string {
	return c.opts.VariableStart + expr + c.opts.VariableEnd
}

func (c *Compiler) visit(n ast.Node) error {
	switch v := n.(type) {
	case *ast.Block:
		return c.visitBlock(v)
	case *ast.CodeBlock:
		return c.visitCodeBlock(v)
	case *ast.Mixin:
		return c.visitMixin(v)
	case *ast.Assignment:
		c.writef("{%% set %s = %s %%}", v.Name, v.Val)
		return nil
	case *ast.Code:
		return c.visitCode(v)
	case *ast.Each:
		return c.visitEach(v)
	case *ast.Include:
		return c.visitInclude(v)
	case *ast.Extends:
		c.writef("{%% extends %q %%}", FormatPath(v.Path, c.opts.Extension))
		return nil
	case *ast.Tag:
		return c.visitTag(v)
	case *ast.Text:
		c.write(v.Val)
		return nil
	case *ast.Comment:
		if v.Buffer {
			c.write("<!--", v.Val, "-->")
		}
		return nil
	case *ast.Doctype:
		c.visitDoctype(v)
		return nil
	case *ast.Conditional:
		return c.visitConditional(v)
	default:
		return &UnknownNodeKindError{Node: n}
	}
}

func (c *Compiler) visitBlock(b *ast.Block) error {
	if b == nil {
		return nil
	}
	for _, n := range b.Nodes {
		if err := c.visit(n); err != nil {
			return err
		}
	}
	return nil
}

// callerName is the name the current mixin nesting level sees its caller as.
func (c *Compiler) callerName() string {
	if c.mixing > 1 {
		return CallerPrefix + strconv.Itoa(c.mixing)
	}
	return CallerName
}

func (c *Compiler) visitCodeBlock(b *ast.CodeBlock) error {
	if c.mixing > 0 {
		name := c.callerName()
		c.writef("{%% if %s %%}%s %s() %s{%% endif %%}", name, c.opts.VariableStart, name, c.opts.VariableEnd)
		return nil
	}

	c.writef("{%% block %s %%}", b.Name)
	if b.Mode == ast.ModeAppend {
		c.write(c.variable("super()"))
	}
	if err := c.visitBlock(b.Block); err != nil {
		return err
	}
	if b.Mode == ast.ModePrepend {
		c.write(c.variable("super()"))
	}
	c.write("{% endblock %}")
	return nil
}

func (c *Compiler) visitMixin(m *ast.Mixin) error {
	c.mixing++
	defer func() { c.mixing-- }()

	switch {
	case !m.Call:
		c.writef("{%% macro %s(%s) %%}", m.Name, m.Args)
		if err := c.visitBlock(m.Block); err != nil {
			return err
		}
		c.write("{% endmacro %}")
	case m.Block != nil:
		if c.mixing > 1 {
			c.writef("{%% set %s%d=%s %%}", CallerPrefix, c.mixing, CallerName)
		}
		c.writef("{%% call %s(%s) %%}", m.Name, m.Args)
		if err := c.visitBlock(m.Block); err != nil {
			return err
		}
		c.write("{% endcall %}")
	default:
		c.write(c.variable(m.Name + "(" + m.Args + ")"))
	}
	return nil
}

func (c *Compiler) visitCode(code *ast.Code) error {
	if code.Buffer {
		val := c.opts.VarProcessor(strings.TrimLeftFunc(code.Val, unicode.IsSpace))
		if code.Escape {
			val += "|escape"
		}
		c.write(c.variable(val))
	} else {
		c.writef("{%% %s %%}", code.Val)
	}

	if code.Block == nil {
		return nil
	}
	if err := c.visitBlock(code.Block); err != nil {
		return err
	}
	if !code.Buffer {
		tag, _, _ := strings.Cut(strings.TrimSpace(code.Val), " ")
		if slices.Contains(autoClose, tag) {
			c.writef("{%% end%s %%}", tag)
		}
	}
	return nil
}

func (c *Compiler) visitEach(e *ast.Each) error {
	c.writef("{%% for %s in %s(%s,%d) %%}", strings.Join(e.Keys, ","), IterFunc, e.Obj, len(e.Keys))
	if err := c.visitBlock(e.Block); err != nil {
		return err
	}
	c.write("{% endfor %}")
	return nil
}

func (c *Compiler) visitTag(t *ast.Tag) error {
	c.write("<", t.Name)
	if len(t.Attrs) > 0 {
		c.write(c.Attributes(attrsLiteral(t.Attrs, c.terse)))
	}

	if t.SelfClosing || (slices.Contains(voidTags, t.Name) && isEmpty(t.Block)) {
		if c.terse {
			c.write(">")
		} else {
			c.write("/>")
		}
		return nil
	}

	c.write(">")
	if err := c.visitBlock(t.Block); err != nil {
		return err
	}
	c.write("</", t.Name, ">")
	return nil
}

// Attributes wraps the raw attribute expression in a call to the attribute
// helper.
func (c *Compiler) Attributes(raw string) string {
	return c.variable(AttrsFunc + "(" + raw + ")")
}

// attrsLiteral builds the helper argument for attrs: a list of
// (name, value) pairs with every class value merged into one leading pair.
func attrsLiteral(attrs []ast.Attribute, terse bool) string {
	var classes, pairs []string
	for _, a := range attrs {
		val := a.Val
		if val == "" {
			val = "true"
		}
		if a.Name == "class" {
			classes = append(classes, val)
			continue
		}
		pairs = append(pairs, fmt.Sprintf("(%q, %s)", a.Name, val))
	}
	if len(classes) > 0 {
		pairs = append([]string{fmt.Sprintf(`("class", [%s])`, strings.Join(classes, ", "))}, pairs...)
	}
	raw := "[" + strings.Join(pairs, ", ") + "]"
	if terse {
		raw += ", true"
	}
	return raw
}

func isEmpty(b *ast.Block) bool {
	return b == nil || len(b.Nodes) == 0
}

func (c *Compiler) visitDoctype(d *ast.Doctype) {
	val := strings.TrimSpace(d.Val)
	if val == "" {
		val = "default"
	}
	out, ok := doctypes[strings.ToLower(val)]
	if !ok {
		out = "<!DOCTYPE " + val + ">"
	}
	c.terse = out == doctypes["html"]
	c.write(out)
}

func (c *Compiler) visitConditional(cond *ast.Conditional) error {
	if err := c.visitLink(cond); err != nil {
		return err
	}
	for _, next := range cond.Next {
		if err := c.visitLink(next); err != nil {
			return err
		}
	}
	c.write("{% endif %}")
	return nil
}

func (c *Compiler) visitLink(cond *ast.Conditional) error {
	switch cond.Type {
	case ast.CondIf:
		c.writef("{%% if %s %%}", cond.Sentence)
	case ast.CondUnless:
		c.writef("{%% if not (%s) %%}", cond.Sentence)
	case ast.CondElif:
		c.writef("{%% elif %s %%}", cond.Sentence)
	case ast.CondElse:
		c.write("{% else %}")
	default:
		return fmt.Errorf("unknown conditional type %q", cond.Type)
	}
	return c.visitBlock(cond.Block)
}
