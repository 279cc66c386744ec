package jinja2

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultMaxDepth bounds nested includes, extends and macro calls.
const DefaultMaxDepth = 100

// ErrMaxDepth is returned when templates nest deeper than Renderer.MaxDepth.
var ErrMaxDepth = errors.New("maximum template nesting depth exceeded")

type Loader interface {
	Load(name string) (string, error)
}

type Renderer struct {
	Loader    Loader
	Evaluator *Evaluator
	// Syntax is used to parse templates fetched through the Loader.
	Syntax   Syntax
	MaxDepth int
}

func NewRenderer(loader Loader) *Renderer {
	return &Renderer{Loader: loader, Evaluator: NewEvaluator(), Syntax: DefaultSyntax, MaxDepth: DefaultMaxDepth}
}

// Render renders doc. Top-level assignments are stored in ctx.
func (r *Renderer) Render(doc *Document, ctx Context) (string, error) {
	if ctx == nil {
		ctx = Context{}
	}
	s := &state{r: r, root: ctx}
	var buf bytes.Buffer
	if err := s.renderDocument(&buf, doc, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTemplate loads the named template and renders it.
func (r *Renderer) RenderTemplate(name string, ctx Context) (string, error) {
	doc, err := r.load(name)
	if err != nil {
		return "", err
	}
	return r.Render(doc, ctx)
}

func (r *Renderer) load(name string) (*Document, error) {
	if r.Loader == nil {
		return nil, fmt.Errorf("loading %q: no loader configured", name)
	}
	src, err := r.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	doc, err := ParseSyntax(src, r.Syntax)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return doc, nil
}

// state is the bookkeeping of a single Render call.
type state struct {
	r    *Renderer
	root Context
	// blocks maps a block name to its definitions, most derived first.
	blocks map[string][]*BlockNode
	depth  int
}

func (s *state) enter() error {
	limit := s.r.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	if s.depth >= limit {
		return ErrMaxDepth
	}
	s.depth++
	return nil
}

func (s *state) leave() { s.depth-- }

func (s *state) renderDocument(buf *bytes.Buffer, doc *Document, ctx Context) error {
	chain := []*Document{doc}
	for cur := doc; ; {
		ext := findExtends(cur)
		if ext == nil {
			break
		}
		if err := s.enter(); err != nil {
			return err
		}
		defer s.leave()
		parent, err := s.r.load(ext.Template)
		if err != nil {
			return fmt.Errorf("extends %q: %w", ext.Template, err)
		}
		chain = append(chain, parent)
		cur = parent
	}

	saved := s.blocks
	defer func() { s.blocks = saved }()
	s.blocks = nil
	if len(chain) > 1 {
		s.blocks = map[string][]*BlockNode{}
		for _, d := range chain {
			_ = Walk(VisitorFunc(func(n Node) error {
				if b, ok := n.(*BlockNode); ok {
					s.blocks[b.Name] = append(s.blocks[b.Name], b)
				}
				return nil
			}), d)
		}
		// Extending templates contribute definitions, not output.
		for _, d := range chain[:len(chain)-1] {
			if err := s.runDefinitions(d, ctx); err != nil {
				return err
			}
		}
	}
	return s.renderNodes(buf, chain[len(chain)-1].Nodes, ctx)
}

func findExtends(doc *Document) *ExtendsNode {
	for _, n := range doc.Nodes {
		if en, ok := n.(*ExtendsNode); ok {
			return en
		}
	}
	return nil
}

func (s *state) runDefinitions(doc *Document, ctx Context) error {
	var discard bytes.Buffer
	for _, n := range doc.Nodes {
		switch n.(type) {
		case *SetNode, *MacroNode:
			if err := s.renderNodes(&discard, []Node{n}, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderBlock renders the definition of name at the given inheritance
// level. super() renders the next level up.
func (s *state) renderBlock(buf *bytes.Buffer, name string, level int, ctx Context) error {
	chain := s.blocks[name]
	local := maps.Clone(ctx)
	local["super"] = CallableValue{Name: "super", Fn: func([]Value) (Value, error) {
		if level+1 >= len(chain) {
			return nil, fmt.Errorf("block %q has no parent definition", name)
		}
		var sb bytes.Buffer
		if err := s.renderBlock(&sb, name, level+1, ctx); err != nil {
			return nil, err
		}
		return SafeValue(sb.String()), nil
	}}
	return s.renderNodes(buf, chain[level].Body, local)
}

func (s *state) renderNodes(buf *bytes.Buffer, nodes []Node, ctx Context) error {
	ev := s.r.Evaluator
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			buf.WriteString(t.Text)
		case *RawNode:
			buf.WriteString(t.Text)
		case *OutputNode:
			v, err := ev.Eval(t.Expr, ctx)
			if err != nil {
				return err
			}
			buf.WriteString(v.String())
		case *SetNode:
			v, err := ev.Eval(t.Expr, ctx)
			if err != nil {
				return err
			}
			ctx[t.Name] = v
		case *IfNode:
			if err := s.renderIf(buf, t, ctx); err != nil {
				return err
			}
		case *ForNode:
			if err := s.renderFor(buf, t, ctx); err != nil {
				return err
			}
		case *BlockNode:
			if len(s.blocks[t.Name]) > 0 {
				if err := s.renderBlock(buf, t.Name, 0, ctx); err != nil {
					return err
				}
				break
			}
			if err := s.renderNodes(buf, t.Body, maps.Clone(ctx)); err != nil {
				return err
			}
		case *ExtendsNode:
			// Handled by renderDocument.
		case *IncludeNode:
			if err := s.enter(); err != nil {
				return err
			}
			doc, err := s.r.load(t.Template)
			if err == nil {
				err = s.renderDocument(buf, doc, ctx)
			}
			s.leave()
			if err != nil {
				return fmt.Errorf("include %q: %w", t.Template, err)
			}
		case *MacroNode:
			ctx[t.Name] = StarlarkValueWrapper{Value: &macro{node: t, s: s}}
		case *CallNode:
			if err := s.renderCall(buf, t, ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled node type: %T", n)
		}
	}
	return nil
}

func (s *state) renderIf(buf *bytes.Buffer, t *IfNode, ctx Context) error {
	ev := s.r.Evaluator
	b, err := ev.Truthy(t.Cond, ctx)
	if err != nil {
		return err
	}
	if b {
		return s.renderNodes(buf, t.Then, ctx)
	}
	for _, e := range t.Elifs {
		b, err := ev.Truthy(e.Cond, ctx)
		if err != nil {
			return err
		}
		if b {
			return s.renderNodes(buf, e.Body, ctx)
		}
	}
	return s.renderNodes(buf, t.Else, ctx)
}

func (s *state) renderFor(buf *bytes.Buffer, t *ForNode, ctx Context) error {
	items, err := s.r.Evaluator.Eval(t.Iterable, ctx)
	if err != nil {
		return err
	}
	arr, err := Iterate(items)
	if err != nil {
		return fmt.Errorf("for %s: %w", t.Iterable, err)
	}
	if len(arr) == 0 {
		return s.renderNodes(buf, t.Else, ctx)
	}
	for idx, it := range arr {
		local := maps.Clone(ctx)
		if err := bindTargets(local, t.Targets, it); err != nil {
			return err
		}
		local["loop"] = DictValue{
			"index":     IntValue(idx + 1),
			"index0":    IntValue(idx),
			"revindex":  IntValue(len(arr) - idx),
			"revindex0": IntValue(len(arr) - idx - 1),
			"first":     BoolValue(idx == 0),
			"last":      BoolValue(idx == len(arr)-1),
			"length":    IntValue(len(arr)),
		}
		if err := s.renderNodes(buf, t.Body, local); err != nil {
			return err
		}
	}
	return nil
}

func bindTargets(ctx Context, targets []string, item Value) error {
	if len(targets) == 1 {
		ctx[targets[0]] = item
		return nil
	}
	parts, err := Iterate(item)
	if err != nil {
		return fmt.Errorf("cannot unpack %T into %s", item, strings.Join(targets, ", "))
	}
	if len(parts) != len(targets) {
		return fmt.Errorf("cannot unpack %d values into %s", len(parts), strings.Join(targets, ", "))
	}
	for i, name := range targets {
		ctx[name] = parts[i]
	}
	return nil
}

// renderCall evaluates the callee and arguments of a call block separately
// so the body is handed to exactly the macro being invoked.
func (s *state) renderCall(buf *bytes.Buffer, t *CallNode, ctx Context) error {
	ev := s.r.Evaluator
	ex, err := fileOptions.ParseExpr("<call>", t.Expr, 0)
	if err != nil {
		return fmt.Errorf("parsing call %q: %w", t.Expr, err)
	}
	call, ok := ex.(*syntax.CallExpr)
	if !ok {
		return fmt.Errorf("call expects a macro invocation, got %q", t.Expr)
	}
	fn, err := ev.evalSyntax(call.Fn, t.Expr, ctx, nil)
	if err != nil {
		return err
	}
	m, ok := fn.(*macro)
	if !ok {
		return fmt.Errorf("call target in %q is a %s, not a macro", t.Expr, fn.Type())
	}

	var args []Value
	kwargs := map[string]Value{}
	for _, a := range call.Args {
		if kw, ok := a.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			v, err := ev.evalSyntax(kw.Y, t.Expr, ctx, nil)
			if err != nil {
				return err
			}
			kwargs[kw.X.(*syntax.Ident).Name] = fromStarlark(v)
			continue
		}
		if u, ok := a.(*syntax.UnaryExpr); ok && (u.Op == syntax.STAR || u.Op == syntax.STARSTAR) {
			return fmt.Errorf("call %q: argument unpacking is not supported", t.Expr)
		}
		v, err := ev.evalSyntax(a, t.Expr, ctx, nil)
		if err != nil {
			return err
		}
		args = append(args, fromStarlark(v))
	}

	callerCtx := maps.Clone(ctx)
	caller := starlark.NewBuiltin("caller", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		var body bytes.Buffer
		if err := s.renderNodes(&body, t.Body, maps.Clone(callerCtx)); err != nil {
			return nil, err
		}
		return starlark.String(body.String()), nil
	})
	out, err := m.call(args, kwargs, StarlarkValueWrapper{Value: caller})
	if err != nil {
		return err
	}
	buf.WriteString(out)
	return nil
}
