package jinja2

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// toStarlark converts a Jinja2 Value to a Starlark value.
func toStarlark(val Value) starlark.Value {
	if val == nil {
		return starlark.None
	}

	switch v := val.(type) {
	case StringValue:
		return starlark.String(string(v))
	case SafeValue:
		return starlark.String(string(v))
	case IntValue:
		return starlark.MakeInt64(int64(v))
	case FloatValue:
		return starlark.Float(float64(v))
	case BoolValue:
		return starlark.Bool(bool(v))
	case ListValue:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = toStarlark(item)
		}
		return starlark.NewList(items)
	case DictValue:
		dict := newAttrDict(len(v))
		for _, key := range v.SortedKeys() {
			dict.SetKey(starlark.String(key), toStarlark(v[key]))
		}
		return dict
	case NoneValue:
		return starlark.None
	case Undefined:
		return undefined{name: v.Name}
	case CallableValue:
		return callableBuiltin(v)
	case StarlarkValueWrapper:
		return v.Value
	default:
		// For unknown types, convert to string
		return starlark.String(val.String())
	}
}

// fromStarlark converts a Starlark value to a Jinja2 Value. Values with no
// Jinja2 counterpart, such as functions and macros, are wrapped.
func fromStarlark(val starlark.Value) Value {
	if val == nil || val == starlark.None {
		return NoneValue{}
	}

	switch v := val.(type) {
	case starlark.String:
		return StringValue(string(v))
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return IntValue(i)
		}
		// For very large integers, convert to string
		return StringValue(v.String())
	case starlark.Float:
		return FloatValue(float64(v))
	case starlark.Bool:
		return BoolValue(bool(v))
	case *starlark.List:
		items := make(ListValue, v.Len())
		for i := 0; i < v.Len(); i++ {
			items[i] = fromStarlark(v.Index(i))
		}
		return items
	case starlark.Tuple:
		items := make(ListValue, len(v))
		for i, item := range v {
			items[i] = fromStarlark(item)
		}
		return items
	case *starlark.Dict:
		return dictFromStarlark(v)
	case *attrDict:
		return dictFromStarlark(v.Dict)
	case undefined:
		return Undefined{Name: v.name}
	default:
		return StarlarkValueWrapper{Value: val}
	}
}

func dictFromStarlark(d *starlark.Dict) DictValue {
	dict := make(DictValue, d.Len())
	for _, item := range d.Items() {
		if keyStr, ok := item[0].(starlark.String); ok {
			dict[string(keyStr)] = fromStarlark(item[1])
		} else {
			dict[item[0].String()] = fromStarlark(item[1])
		}
	}
	return dict
}

func iterateStarlark(v starlark.Value) ([]Value, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("not iterable: %s", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []Value
	var item starlark.Value
	for iter.Next(&item) {
		out = append(out, fromStarlark(item))
	}
	return out, nil
}

func callableBuiltin(c CallableValue) *starlark.Builtin {
	return starlark.NewBuiltin(c.Name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
		}
		in := make([]Value, len(args))
		for i, a := range args {
			in[i] = fromStarlark(a)
		}
		out, err := c.Fn(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		return toStarlark(out), nil
	})
}

// StarlarkValueWrapper wraps a Starlark value to implement Value.
type StarlarkValueWrapper struct {
	Value starlark.Value
}

func (w StarlarkValueWrapper) String() string {
	if s, ok := w.Value.(starlark.String); ok {
		return string(s)
	}
	return w.Value.String()
}

func (w StarlarkValueWrapper) Truth() bool {
	if w.Value == nil {
		return false
	}
	return bool(w.Value.Truth())
}

// undefined is the Starlark side of Undefined. Attribute and index access
// on it yield another undefined, so chains like a.b.c never fail.
type undefined struct{ name string }

func (u undefined) String() string        { return "" }
func (u undefined) Type() string          { return "undefined" }
func (u undefined) Freeze()               {}
func (u undefined) Truth() starlark.Bool  { return starlark.False }
func (u undefined) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: undefined %s", u.name) }

func (u undefined) Attr(name string) (starlark.Value, error) {
	return undefined{name: u.name + "." + name}, nil
}

func (u undefined) AttrNames() []string { return nil }

func (u undefined) Get(k starlark.Value) (starlark.Value, bool, error) {
	return undefined{name: u.name + "[" + k.String() + "]"}, true, nil
}

func (u undefined) Iterate() starlark.Iterator { return emptyIterator{} }

func (u undefined) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	switch op {
	case syntax.EQL:
		return true, nil
	case syntax.NEQ:
		return false, nil
	}
	return false, fmt.Errorf("undefined %s is not ordered", u.name)
}

type emptyIterator struct{}

func (emptyIterator) Next(*starlark.Value) bool { return false }
func (emptyIterator) Done()                     {}

// attrDict is a dict whose keys are also reachable as attributes, so
// templates can write user.name for user["name"].
type attrDict struct {
	*starlark.Dict
}

func newAttrDict(size int) *attrDict {
	return &attrDict{Dict: starlark.NewDict(size)}
}

func (d *attrDict) Type() string { return "attrdict" }

func (d *attrDict) Attr(name string) (starlark.Value, error) {
	if v, found, err := d.Dict.Get(starlark.String(name)); err == nil && found {
		return v, nil
	}
	if v, err := d.Dict.Attr(name); v != nil || err != nil {
		return v, err
	}
	return undefined{name: name}, nil
}

func (d *attrDict) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	return d.Dict.CompareSameType(op, y.(*attrDict).Dict, depth)
}

var (
	_ Value                    = StarlarkValueWrapper{}
	_ starlark.HasAttrs        = undefined{}
	_ starlark.Mapping         = undefined{}
	_ starlark.Iterable        = undefined{}
	_ starlark.Comparable      = undefined{}
	_ starlark.HasAttrs        = (*attrDict)(nil)
	_ starlark.Comparable      = (*attrDict)(nil)
	_ starlark.IterableMapping = (*attrDict)(nil)
)
