package runtime

import (
	"reflect"
	"testing"

	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

func TestAttrs(t *testing.T) {
	pairs := jinja2.ListValue{
		jinja2.ListValue{jinja2.StringValue("id"), jinja2.StringValue("main")},
		jinja2.ListValue{jinja2.StringValue("class"), jinja2.ListValue{
			jinja2.StringValue("a"),
			jinja2.ListValue{jinja2.StringValue("b"), jinja2.NoneValue{}},
			jinja2.Undefined{Name: "c"},
		}},
		jinja2.ListValue{jinja2.StringValue("hidden"), jinja2.BoolValue(true)},
		jinja2.ListValue{jinja2.StringValue("off"), jinja2.BoolValue(false)},
		jinja2.ListValue{jinja2.StringValue("gone"), jinja2.Undefined{Name: "x"}},
		jinja2.ListValue{jinja2.StringValue("nil"), jinja2.NoneValue{}},
	}
	cases := []struct {
		name  string
		attrs jinja2.Value
		terse bool
		want  string
	}{
		{"pairs", pairs, false, ` id="main" class="a b" hidden="hidden"`},
		{"pairs terse", pairs, true, ` id="main" class="a b" hidden`},
		{"dict sorted and escaped", jinja2.DictValue{
			"title": jinja2.StringValue(`"x" & <y>`),
			"alt":   jinja2.IntValue(3),
		}, false, ` alt="3" title="&#34;x&#34; &amp; &lt;y&gt;"`},
		{"safe value kept", jinja2.DictValue{"data": jinja2.SafeValue("&amp;")}, false, ` data="&amp;"`},
		{"empty class dropped", jinja2.ListValue{
			jinja2.ListValue{jinja2.StringValue("class"), jinja2.ListValue{jinja2.NoneValue{}}},
		}, false, ""},
		{"none", jinja2.NoneValue{}, false, ""},
		{"empty list", jinja2.ListValue{}, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Attrs(tc.attrs, tc.terse)
			if err != nil {
				t.Fatalf("Attrs error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAttrsErrors(t *testing.T) {
	for name, v := range map[string]jinja2.Value{
		"scalar":      jinja2.StringValue("id"),
		"short pair":  jinja2.ListValue{jinja2.ListValue{jinja2.StringValue("id")}},
		"non-list el": jinja2.ListValue{jinja2.StringValue("id")},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Attrs(v, false); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func ints(v ...int) jinja2.ListValue {
	out := make(jinja2.ListValue, len(v))
	for i, n := range v {
		out[i] = jinja2.IntValue(n)
	}
	return out
}

func pair(a, b jinja2.Value) jinja2.ListValue { return jinja2.ListValue{a, b} }

func TestIterate(t *testing.T) {
	dict := jinja2.DictValue{"b": jinja2.IntValue(2), "a": jinja2.IntValue(1)}
	pairs := jinja2.ListValue{
		pair(jinja2.StringValue("x"), jinja2.IntValue(1)),
		pair(jinja2.StringValue("y"), jinja2.IntValue(2)),
	}
	cases := []struct {
		name string
		obj  jinja2.Value
		n    int
		want jinja2.ListValue
	}{
		{"sequence one key", ints(10, 20, 30), 1, ints(10, 20, 30)},
		{"sequence two keys", ints(10, 20, 30), 2, jinja2.ListValue{
			pair(jinja2.IntValue(0), jinja2.IntValue(10)),
			pair(jinja2.IntValue(1), jinja2.IntValue(20)),
			pair(jinja2.IntValue(2), jinja2.IntValue(30)),
		}},
		{"pairs pass through", pairs, 2, pairs},
		{"mixed pairs get indexes", jinja2.ListValue{pairs[0], jinja2.IntValue(5)}, 2, jinja2.ListValue{
			pair(jinja2.IntValue(0), pairs[0]),
			pair(jinja2.IntValue(1), jinja2.IntValue(5)),
		}},
		{"dict one key", dict, 1, jinja2.ListValue{jinja2.StringValue("a"), jinja2.StringValue("b")}},
		{"dict two keys", dict, 2, jinja2.ListValue{
			pair(jinja2.StringValue("a"), jinja2.IntValue(1)),
			pair(jinja2.StringValue("b"), jinja2.IntValue(2)),
		}},
		{"string two keys", jinja2.StringValue("ab"), 2, jinja2.ListValue{
			pair(jinja2.IntValue(0), jinja2.StringValue("a")),
			pair(jinja2.IntValue(1), jinja2.StringValue("b")),
		}},
		{"undefined", jinja2.Undefined{Name: "x"}, 2, jinja2.ListValue{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Iterate(tc.obj, tc.n)
			if err != nil {
				t.Fatalf("Iterate error: %v", err)
			}
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}

	if _, err := Iterate(ints(1), 3); err == nil {
		t.Fatalf("expected error for three bindings")
	}
}

func TestHelpersInTemplates(t *testing.T) {
	ctx := jinja2.Context{
		"d":     jinja2.DictValue{"b": jinja2.IntValue(2), "a": jinja2.IntValue(1)},
		"xs":    ints(10, 20),
		"klass": jinja2.StringValue("wide"),
	}
	cases := []struct {
		tpl  string
		want string
	}{
		{"{% for k, v in __pug_iter(d, 2) %}{{ k }}={{ v }};{% endfor %}", "a=1;b=2;"},
		{"{% for i, x in __pug_iter(xs, 2) %}{{ i }}:{{ x }} {% endfor %}", "0:10 1:20 "},
		{"{% for x in __pug_iter(xs, 1) %}{{ x }}{% endfor %}", "1020"},
		{`<div{{__pug_attrs([("class", ["box", klass]), ("id", missing)])}}>`, `<div class="box wide">`},
		{`<input{{__pug_attrs([("checked", true)], true)}}>`, `<input checked>`},
	}
	for _, tc := range cases {
		t.Run(tc.tpl, func(t *testing.T) {
			doc, err := jinja2.Parse(tc.tpl)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			got, err := NewRenderer(nil).Render(doc, ctx)
			if err != nil {
				t.Fatalf("render error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
