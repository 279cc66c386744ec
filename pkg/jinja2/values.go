package jinja2

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Value is an abstract value used by the Jinja evaluator, inspired by Starlark.
// It defines string conversion and truthiness semantics.
type Value interface {
	String() string
	Truth() bool
}

// CallableValue wraps a Go function that can be invoked from templates.
// Keyword arguments are not supported.
type CallableValue struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

func (c CallableValue) String() string { return "<function " + c.Name + ">" }
func (c CallableValue) Truth() bool    { return true }

// NoneValue represents the absence of a value.
type NoneValue struct{}

func (NoneValue) String() string { return "" }
func (NoneValue) Truth() bool    { return false }

// Undefined is the value of a name that is not bound in the context.
// It renders empty, is falsy and yields Undefined for any attribute.
type Undefined struct {
	Name string
}

func (Undefined) String() string { return "" }
func (Undefined) Truth() bool    { return false }

// IsUndefined reports whether v is missing or Undefined.
func IsUndefined(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Undefined)
	return ok
}

// BoolValue wraps a boolean.
type BoolValue bool

func (b BoolValue) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b BoolValue) Truth() bool { return bool(b) }

// IntValue wraps an integer (64-bit).
type IntValue int64

func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool    { return int64(i) != 0 }

// FloatValue wraps a float (64-bit).
type FloatValue float64

func (f FloatValue) String() string { return fmt.Sprintf("%v", float64(f)) }
func (f FloatValue) Truth() bool    { return float64(f) != 0 }

// StringValue wraps a string.
type StringValue string

func (s StringValue) String() string { return string(s) }
func (s StringValue) Truth() bool    { return len(string(s)) > 0 }

// SafeValue is markup that the escape filter leaves untouched.
type SafeValue string

func (s SafeValue) String() string { return string(s) }
func (s SafeValue) Truth() bool    { return len(string(s)) > 0 }

// ListValue wraps a list of values. Tuples convert to lists as well.
type ListValue []Value

func (l ListValue) String() string {
	// Join by space for a simple representation
	out := ""
	for i, v := range l {
		if i > 0 {
			out += " "
		}
		out += v.String()
	}
	return out
}
func (l ListValue) Truth() bool { return len(l) > 0 }

// DictValue wraps a string-keyed dictionary of values.
type DictValue map[string]Value

func (d DictValue) String() string { return "{...}" }
func (d DictValue) Truth() bool    { return len(d) > 0 }

// SortedKeys returns the keys of d in lexical order.
func (d DictValue) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Context maps names to values for a render.
type Context map[string]Value

// NewContextFromAny converts a map[string]any into a Value-based Context.
// It recursively converts nested maps/slices into DictValue/ListValue.
func NewContextFromAny(m map[string]any) Context {
	ctx := Context{}
	for k, v := range m {
		ctx[k] = FromGo(v)
	}
	return ctx
}

// FromGo converts a Go value to a Value.
func FromGo(v any) Value {
	if v == nil {
		return NoneValue{}
	}
	switch t := v.(type) {
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case []byte:
		return StringValue(string(t))
	case func(args []Value) (Value, error):
		return CallableValue{Name: "func", Fn: t}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make(ListValue, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, FromGo(rv.Index(i).Interface()))
		}
		return out
	case reflect.Map:
		out := DictValue{}
		it := rv.MapRange()
		for it.Next() {
			// Non-string keys (as produced by YAML decoding) use their
			// formatted form.
			out[fmt.Sprint(it.Key().Interface())] = FromGo(it.Value().Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NoneValue{}
		}
		return FromGo(rv.Elem().Interface())
	}
	// Fallback: string formatting
	return StringValue(fmt.Sprintf("%v", v))
}

// Iterate converts a Value into a []Value for iteration semantics.
// Dicts yield their keys in sorted order.
func Iterate(v Value) ([]Value, error) {
	switch t := v.(type) {
	case nil, NoneValue, Undefined:
		return nil, nil
	case StringValue:
		return chars(string(t)), nil
	case SafeValue:
		return chars(string(t)), nil
	case ListValue:
		// Copy to avoid mutating underlying array
		out := make([]Value, len(t))
		copy(out, t)
		return out, nil
	case DictValue:
		out := make([]Value, 0, len(t))
		for _, k := range t.SortedKeys() {
			out = append(out, StringValue(k))
		}
		return out, nil
	case StarlarkValueWrapper:
		return iterateStarlark(t.Value)
	}
	return nil, fmt.Errorf("not iterable: %T", v)
}

func chars(s string) []Value {
	out := make([]Value, 0, utf8.RuneCountInString(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		out = append(out, StringValue(string(r)))
	}
	return out
}
