// Package runtime provides the helper functions that compiled templates
// call while rendering.
package runtime

import (
	"fmt"
	"strings"

	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

// Attrs renders attrs as an HTML attribute string. attrs is either a list
// of (name, value) pairs or a dict. None, false and undefined values drop
// the attribute. A true value renders as a bare name in terse mode and as
// name="name" otherwise. A class list is flattened and joined with spaces.
// The result starts with a space unless it is empty.
func Attrs(attrs jinja2.Value, terse bool) (string, error) {
	pairs, err := attrPairs(attrs)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range pairs {
		if omitted(p.val) {
			continue
		}
		if v, ok := p.val.(jinja2.BoolValue); ok && bool(v) {
			if terse {
				fmt.Fprintf(&b, " %s", p.name)
			} else {
				fmt.Fprintf(&b, ` %s="%s"`, p.name, p.name)
			}
			continue
		}
		val := p.val
		if list, ok := val.(jinja2.ListValue); ok && p.name == "class" {
			joined := joinClasses(list)
			if joined == "" {
				continue
			}
			val = jinja2.StringValue(joined)
		}
		fmt.Fprintf(&b, ` %s="%s"`, p.name, jinja2.Escape(val))
	}
	return b.String(), nil
}

type attrPair struct {
	name string
	val  jinja2.Value
}

func attrPairs(attrs jinja2.Value) ([]attrPair, error) {
	switch v := attrs.(type) {
	case nil, jinja2.NoneValue, jinja2.Undefined:
		return nil, nil
	case jinja2.DictValue:
		out := make([]attrPair, 0, len(v))
		for _, k := range v.SortedKeys() {
			out = append(out, attrPair{name: k, val: v[k]})
		}
		return out, nil
	case jinja2.ListValue:
		out := make([]attrPair, 0, len(v))
		for i, item := range v {
			pair, ok := item.(jinja2.ListValue)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("attribute %d: want a (name, value) pair, got %s", i, item)
			}
			out = append(out, attrPair{name: pair[0].String(), val: pair[1]})
		}
		return out, nil
	}
	return nil, fmt.Errorf("attributes must be a list of pairs or a dict, got %T", attrs)
}

func omitted(v jinja2.Value) bool {
	switch t := v.(type) {
	case nil, jinja2.NoneValue, jinja2.Undefined:
		return true
	case jinja2.BoolValue:
		return !bool(t)
	}
	return false
}

// joinClasses flattens nested class lists, skipping omitted entries.
func joinClasses(list jinja2.ListValue) string {
	var parts []string
	var walk func(jinja2.ListValue)
	walk = func(l jinja2.ListValue) {
		for _, item := range l {
			switch t := item.(type) {
			case jinja2.ListValue:
				walk(t)
			default:
				if omitted(t) {
					continue
				}
				if s := t.String(); s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	walk(list)
	return strings.Join(parts, " ")
}
