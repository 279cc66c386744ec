package runtime

import (
	"fmt"

	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

// Iterate shapes obj for a loop that binds n names.
//
// With n == 1 a sequence yields its elements and a dict its sorted keys.
// With n == 2 a dict yields (key, value) pairs sorted by key, and a
// sequence whose elements are all pairs is returned unchanged. Any other
// sequence yields (index, element) pairs. Strings iterate by character;
// none and undefined yield nothing.
func Iterate(obj jinja2.Value, n int) (jinja2.ListValue, error) {
	if n != 1 && n != 2 {
		return nil, fmt.Errorf("iteration binds 1 or 2 names, got %d", n)
	}
	if d, ok := obj.(jinja2.DictValue); ok && n == 2 {
		out := make(jinja2.ListValue, 0, len(d))
		for _, k := range d.SortedKeys() {
			out = append(out, jinja2.ListValue{jinja2.StringValue(k), d[k]})
		}
		return out, nil
	}

	items, err := jinja2.Iterate(obj)
	if err != nil {
		return nil, err
	}
	if n == 1 || allPairs(items) {
		return jinja2.ListValue(items), nil
	}
	out := make(jinja2.ListValue, len(items))
	for i, it := range items {
		out[i] = jinja2.ListValue{jinja2.IntValue(i), it}
	}
	return out, nil
}

func allPairs(items []jinja2.Value) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		l, ok := it.(jinja2.ListValue)
		if !ok || len(l) != 2 {
			return false
		}
	}
	return true
}
