package jinja2

import (
	"bytes"
	"fmt"
	"maps"

	"go.starlark.net/starlark"
)

// macro is a template macro as seen by expressions. Calling it renders the
// body with the arguments bound on top of the render's root context.
type macro struct {
	node *MacroNode
	s    *state
}

func (m *macro) String() string        { return "<macro " + m.node.Name + ">" }
func (m *macro) Type() string          { return "macro" }
func (m *macro) Freeze()               {}
func (m *macro) Truth() starlark.Bool  { return starlark.True }
func (m *macro) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: macro") }
func (m *macro) Name() string          { return m.node.Name }

func (m *macro) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	in := make([]Value, len(args))
	for i, a := range args {
		in[i] = fromStarlark(a)
	}
	kw := make(map[string]Value, len(kwargs))
	for _, pair := range kwargs {
		kw[string(pair[0].(starlark.String))] = fromStarlark(pair[1])
	}
	out, err := m.call(in, kw, nil)
	if err != nil {
		return nil, err
	}
	return starlark.String(out), nil
}

// call renders the macro. caller, when non-nil, is bound as "caller".
func (m *macro) call(args []Value, kwargs map[string]Value, caller Value) (string, error) {
	s := m.s
	if err := s.enter(); err != nil {
		return "", fmt.Errorf("macro %s: %w", m.node.Name, err)
	}
	defer s.leave()

	params := m.node.Params
	if len(args) > len(params) {
		return "", fmt.Errorf("macro %s takes %d arguments, %d given", m.node.Name, len(params), len(args))
	}
	local := maps.Clone(s.root)
	delete(local, "caller")
	for i, p := range params {
		kv, named := kwargs[p.Name]
		switch {
		case i < len(args):
			if named {
				return "", fmt.Errorf("macro %s got multiple values for %s", m.node.Name, p.Name)
			}
			local[p.Name] = args[i]
		case named:
			local[p.Name] = kv
		case p.Default != "":
			v, err := s.r.Evaluator.Eval(p.Default, local)
			if err != nil {
				return "", fmt.Errorf("macro %s: default of %s: %w", m.node.Name, p.Name, err)
			}
			local[p.Name] = v
		default:
			local[p.Name] = Undefined{Name: p.Name}
		}
		delete(kwargs, p.Name)
	}
	for name := range kwargs {
		return "", fmt.Errorf("macro %s has no parameter %s", m.node.Name, name)
	}
	if caller != nil {
		local["caller"] = caller
	}

	var buf bytes.Buffer
	if err := s.renderNodes(&buf, m.node.Body, local); err != nil {
		return "", fmt.Errorf("macro %s: %w", m.node.Name, err)
	}
	return buf.String(), nil
}

var _ starlark.Callable = (*macro)(nil)
