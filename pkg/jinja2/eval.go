package jinja2

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Filter transforms a value in a filter pipeline. args are the evaluated
// arguments in parentheses after the filter name.
type Filter func(val Value, args []Value) (Value, error)

// Filters is a registry of filter functions.
type Filters map[string]Filter

// DefaultFilters provides a small set of common filters.
func DefaultFilters() Filters {
	f := Filters{
		"upper":      stringFilter(strings.ToUpper),
		"lower":      stringFilter(strings.ToLower),
		"trim":       stringFilter(strings.TrimSpace),
		"capitalize": stringFilter(capitalize),
		"default": func(val Value, args []Value) (Value, error) {
			if len(args) < 1 {
				return val, nil
			}
			_, none := val.(NoneValue)
			boolean := len(args) > 1 && args[1].Truth()
			if IsUndefined(val) || none || (boolean && !val.Truth()) {
				return args[0], nil
			}
			return val, nil
		},
		"join": func(val Value, args []Value) (Value, error) {
			sep := ""
			if len(args) > 0 {
				sep = args[0].String()
			}
			items, err := Iterate(val)
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.String()
			}
			return StringValue(strings.Join(parts, sep)), nil
		},
		"length": func(val Value, _ []Value) (Value, error) {
			switch v := val.(type) {
			case StringValue:
				return IntValue(len([]rune(string(v)))), nil
			case DictValue:
				return IntValue(len(v)), nil
			}
			items, err := Iterate(val)
			if err != nil {
				return nil, err
			}
			return IntValue(len(items)), nil
		},
		"escape": func(val Value, _ []Value) (Value, error) { return Escape(val), nil },
		"safe": func(val Value, _ []Value) (Value, error) {
			if IsUndefined(val) {
				return val, nil
			}
			return SafeValue(val.String()), nil
		},
		"string": func(val Value, _ []Value) (Value, error) { return StringValue(val.String()), nil },
		"int": func(val Value, _ []Value) (Value, error) {
			switch v := val.(type) {
			case IntValue:
				return v, nil
			case FloatValue:
				return IntValue(int64(v)), nil
			case BoolValue:
				if v {
					return IntValue(1), nil
				}
				return IntValue(0), nil
			}
			i, err := strconv.ParseInt(strings.TrimSpace(val.String()), 10, 64)
			if err != nil {
				return IntValue(0), nil
			}
			return IntValue(i), nil
		},
		"list": func(val Value, _ []Value) (Value, error) {
			items, err := Iterate(val)
			return ListValue(items), err
		},
		"first": func(val Value, _ []Value) (Value, error) {
			items, err := Iterate(val)
			if err != nil || len(items) == 0 {
				return Undefined{Name: "first"}, err
			}
			return items[0], nil
		},
		"last": func(val Value, _ []Value) (Value, error) {
			items, err := Iterate(val)
			if err != nil || len(items) == 0 {
				return Undefined{Name: "last"}, err
			}
			return items[len(items)-1], nil
		},
		"reverse": func(val Value, _ []Value) (Value, error) {
			items, err := Iterate(val)
			if err != nil {
				return nil, err
			}
			out := make(ListValue, len(items))
			for i, it := range items {
				out[len(items)-1-i] = it
			}
			return out, nil
		},
		"sort": func(val Value, _ []Value) (Value, error) {
			items, err := Iterate(val)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(items, func(i, j int) bool { return items[i].String() < items[j].String() })
			return ListValue(items), nil
		},
		"replace": func(val Value, args []Value) (Value, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("replace expects old and new strings")
			}
			return StringValue(strings.ReplaceAll(val.String(), args[0].String(), args[1].String())), nil
		},
	}
	f["e"] = f["escape"]
	f["d"] = f["default"]
	f["count"] = f["length"]
	f["map"] = func(val Value, args []Value) (Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("map expects a filter name")
		}
		name := args[0].String()
		fn := f[name]
		if fn == nil {
			return nil, fmt.Errorf("map: unknown filter: %s", name)
		}
		items, err := Iterate(val)
		if err != nil {
			return nil, err
		}
		out := make(ListValue, len(items))
		for i, it := range items {
			if out[i], err = fn(it, args[1:]); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return f
}

// stringFilter lifts a string function into a filter. Undefined passes
// through so a later default can still apply.
func stringFilter(fn func(string) string) Filter {
	return func(val Value, _ []Value) (Value, error) {
		if IsUndefined(val) {
			return val, nil
		}
		return StringValue(fn(val.String())), nil
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// Escape HTML-escapes the string form of v. Safe values are returned as is.
func Escape(v Value) SafeValue {
	if s, ok := v.(SafeValue); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return SafeValue(html.EscapeString(v.String()))
}

// DefaultGlobals are the functions available to every template.
func DefaultGlobals() Context {
	return Context{
		"raise": CallableValue{Name: "raise", Fn: func(args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			return nil, fmt.Errorf("template raised: %s", strings.Join(parts, " "))
		}},
	}
}

// Evaluator evaluates template expressions. The part before the first
// filter pipe is a Starlark expression; names that are neither in the
// context, the globals nor the Starlark universe evaluate to Undefined.
type Evaluator struct {
	Filters Filters
	Globals Context
}

func NewEvaluator() *Evaluator {
	return &Evaluator{Filters: DefaultFilters(), Globals: DefaultGlobals()}
}

var fileOptions = &syntax.FileOptions{Set: true, TopLevelControl: true, GlobalReassign: true}

// literals maps the Jinja spellings of the constants to Starlark values.
var literals = starlark.StringDict{
	"true":  starlark.True,
	"false": starlark.False,
	"none":  starlark.None,
}

// pipeVar holds the pipeline value while an expression tail that follows
// a filter is evaluated, as in x|length > 2.
const pipeVar = "__pipe"

// Eval evaluates expr, including its filter pipeline, against ctx.
func (e *Evaluator) Eval(expr string, ctx Context) (Value, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return NoneValue{}, nil
	}
	parts := splitPipes(expr)
	sv, err := e.eval(parts[0], ctx, nil)
	if err != nil {
		return nil, err
	}
	val := fromStarlark(sv)
	for _, f := range parts[1:] {
		name, argSrc, tail, err := parseFilterCall(f)
		if err != nil {
			return nil, err
		}
		fn := e.Filters[name]
		if fn == nil {
			return nil, fmt.Errorf("unknown filter: %s", name)
		}
		var args []Value
		for _, a := range splitArgs(argSrc) {
			v, err := e.eval(a, ctx, nil)
			if err != nil {
				return nil, err
			}
			args = append(args, fromStarlark(v))
		}
		if val, err = fn(val, args); err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		if tail != "" {
			sv, err := e.eval(pipeVar+" "+tail, ctx, Context{pipeVar: val})
			if err != nil {
				return nil, err
			}
			val = fromStarlark(sv)
		}
	}
	return val, nil
}

// Truthy evaluates an expression and returns its truthiness.
func (e *Evaluator) Truthy(expr string, ctx Context) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, nil
	}
	v, err := e.Eval(expr, ctx)
	if err != nil {
		return false, err
	}
	return v.Truth(), nil
}

func (e *Evaluator) eval(src string, ctx, extra Context) (starlark.Value, error) {
	ex, err := fileOptions.ParseExpr("<expr>", src, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", src, err)
	}
	return e.evalSyntax(ex, src, ctx, extra)
}

func (e *Evaluator) evalSyntax(ex syntax.Expr, src string, ctx, extra Context) (starlark.Value, error) {
	thread := &starlark.Thread{Name: "jinja2"}
	v, err := starlark.EvalExprOptions(fileOptions, thread, ex, e.env(ex, ctx, extra))
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", src, err)
	}
	return v, nil
}

// env binds every free name of ex.
func (e *Evaluator) env(ex syntax.Expr, ctx, extra Context) starlark.StringDict {
	env := starlark.StringDict{}
	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.DotExpr:
			// The selector is not a reference.
			syntax.Walk(n.X, visit)
			return false
		case *syntax.Ident:
			if _, done := env[n.Name]; !done {
				if v, ok := e.lookup(n.Name, ctx, extra); ok {
					env[n.Name] = v
				}
			}
		}
		return true
	}
	syntax.Walk(ex, visit)
	return env
}

func (e *Evaluator) lookup(name string, ctx, extra Context) (starlark.Value, bool) {
	for _, scope := range []Context{extra, ctx, e.Globals} {
		if v, ok := scope[name]; ok {
			return toStarlark(v), true
		}
	}
	if v, ok := literals[name]; ok {
		return v, true
	}
	if _, ok := starlark.Universe[name]; ok {
		return nil, false
	}
	return undefined{name: name}, true
}

// splitPipes splits expr at top-level '|' characters.
func splitPipes(s string) []string {
	return splitTopLevel(s, '|')
}

// splitArgs splits an argument list at top-level commas.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return splitTopLevel(s, ',')
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var b strings.Builder
	depth := 0
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
			b.WriteByte(c)
		case '(', '[', '{':
			depth++
			b.WriteByte(c)
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			b.WriteByte(c)
		default:
			if c == sep && depth == 0 {
				parts = append(parts, strings.TrimSpace(b.String()))
				b.Reset()
			} else {
				b.WriteByte(c)
			}
		}
	}
	parts = append(parts, strings.TrimSpace(b.String()))
	return parts
}

// parseFilterCall splits a pipeline segment into the filter name, the raw
// argument list and whatever expression follows the call.
func parseFilterCall(s string) (name, args, tail string, err error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] == '_' || s[i] >= 'a' && s[i] <= 'z' || s[i] >= 'A' && s[i] <= 'Z' || s[i] >= '0' && s[i] <= '9') {
		i++
	}
	name = s[:i]
	if name == "" {
		return "", "", "", fmt.Errorf("invalid filter %q", s)
	}
	rest := strings.TrimLeft(s[i:], " \t")
	if !strings.HasPrefix(rest, "(") {
		return name, "", strings.TrimSpace(rest), nil
	}
	depth := 0
	inStr := byte(0)
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if inStr != 0 {
			if c == '\\' {
				j++
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return name, rest[1:j], strings.TrimSpace(rest[j+1:]), nil
			}
		}
	}
	return "", "", "", fmt.Errorf("unbalanced parentheses in filter %q", s)
}
