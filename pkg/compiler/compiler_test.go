package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/pugjinja/pugjinja/pkg/ast"
)

func block(nodes ...ast.Node) *ast.Block { return &ast.Block{Nodes: nodes} }

func text(s string) *ast.Text { return &ast.Text{Val: s} }

func TestCompileNodes(t *testing.T) {
	cases := []struct {
		name string
		tree ast.Node
		want string
	}{
		{
			name: "block replace",
			tree: &ast.CodeBlock{Name: "content", Mode: ast.ModeReplace, Block: block(text("x"))},
			want: "{% block content %}x{% endblock %}",
		},
		{
			name: "block append",
			tree: &ast.CodeBlock{Name: "content", Mode: ast.ModeAppend, Block: block(text("x"))},
			want: "{% block content %}{{super()}}x{% endblock %}",
		},
		{
			name: "block prepend",
			tree: &ast.CodeBlock{Name: "content", Mode: ast.ModePrepend, Block: block(text("x"))},
			want: "{% block content %}x{{super()}}{% endblock %}",
		},
		{
			name: "empty block",
			tree: &ast.CodeBlock{Name: "empty"},
			want: "{% block empty %}{% endblock %}",
		},
		{
			name: "mixin definition",
			tree: &ast.Mixin{Name: "m", Args: "a, b='x'", Block: block(text("t"))},
			want: "{% macro m(a, b='x') %}t{% endmacro %}",
		},
		{
			name: "caller block in definition",
			tree: &ast.Mixin{Name: "m", Block: block(&ast.CodeBlock{})},
			want: "{% macro m() %}{% if caller %}{{ caller() }}{% endif %}{% endmacro %}",
		},
		{
			name: "nested call captures caller",
			tree: &ast.Mixin{Name: "outer", Block: block(
				&ast.Mixin{Name: "inner", Args: "1", Call: true, Block: block(&ast.CodeBlock{})},
			)},
			want: "{% macro outer() %}{% set __pug_caller_2=caller %}{% call inner(1) %}" +
				"{% if __pug_caller_2 %}{{ __pug_caller_2() }}{% endif %}{% endcall %}{% endmacro %}",
		},
		{
			name: "call with block",
			tree: &ast.Mixin{Name: "m", Args: "1", Call: true, Block: block(text("x"))},
			want: "{% call m(1) %}x{% endcall %}",
		},
		{
			name: "call without block",
			tree: &ast.Mixin{Name: "m", Args: "1, 2", Call: true},
			want: "{{m(1, 2)}}",
		},
		{
			name: "assignment",
			tree: &ast.Assignment{Name: "x", Val: "1+1"},
			want: "{% set x = 1+1 %}",
		},
		{
			name: "buffered code",
			tree: &ast.Code{Val: " \tuser.name ", Buffer: true},
			want: "{{user.name }}",
		},
		{
			name: "buffered code strips unicode space",
			tree: &ast.Code{Val: "\v\f \u00a0\u2003x", Buffer: true},
			want: "{{x}}",
		},
		{
			name: "buffered escaped code",
			tree: &ast.Code{Val: "x", Buffer: true, Escape: true},
			want: "{{x|escape}}",
		},
		{
			name: "statement with auto-closed body",
			tree: &ast.Code{Val: "if a", Block: block(text("y"))},
			want: "{% if a %}y{% endif %}",
		},
		{
			name: "statement with body and no closer",
			tree: &ast.Code{Val: "set x = 1", Block: block(text("y"))},
			want: "{% set x = 1 %}y",
		},
		{
			name: "statement without body",
			tree: &ast.Code{Val: "if a"},
			want: "{% if a %}",
		},
		{
			name: "buffered code with body",
			tree: &ast.Code{Val: "for", Buffer: true, Block: block(text("y"))},
			want: "{{for}}y",
		},
		{
			name: "each one key",
			tree: &ast.Each{Keys: []string{"x"}, Obj: "items", Block: block(&ast.Code{Val: "x", Buffer: true})},
			want: "{% for x in __pug_iter(items,1) %}{{x}}{% endfor %}",
		},
		{
			name: "each two keys",
			tree: &ast.Each{Keys: []string{"k", "v"}, Obj: "d.items"},
			want: "{% for k,v in __pug_iter(d.items,2) %}{% endfor %}",
		},
		{
			name: "tag with attributes",
			tree: &ast.Tag{Name: "a", Attrs: []ast.Attribute{
				{Name: "href", Val: "url"},
				{Name: "class", Val: "'btn'"},
				{Name: "class", Val: "extra"},
			}, Block: block(text("go"))},
			want: `<a{{__pug_attrs([("class", ['btn', extra]), ("href", url)])}}>go</a>`,
		},
		{
			name: "boolean attribute",
			tree: &ast.Tag{Name: "input", Attrs: []ast.Attribute{{Name: "checked"}}},
			want: `<input{{__pug_attrs([("checked", true)])}}/>`,
		},
		{
			name: "void and self-closing tags",
			tree: block(&ast.Tag{Name: "br"}, &ast.Tag{Name: "foo", SelfClosing: true}, &ast.Tag{Name: "p"}),
			want: "<br/><foo/><p></p>",
		},
		{
			name: "terse doctype",
			tree: block(&ast.Doctype{Val: "html"}, &ast.Tag{Name: "br"}, &ast.Tag{Name: "input", Attrs: []ast.Attribute{{Name: "x", Val: "1"}}}),
			want: `<!DOCTYPE html><br><input{{__pug_attrs([("x", 1)], true)}}>`,
		},
		{
			name: "other doctypes",
			tree: block(&ast.Doctype{Val: "xml"}, &ast.Doctype{Val: "custom thing"}),
			want: `<?xml version="1.0" encoding="utf-8" ?><!DOCTYPE custom thing>`,
		},
		{
			name: "comments",
			tree: block(&ast.Comment{Val: " shown ", Buffer: true}, &ast.Comment{Val: "hidden"}),
			want: "<!-- shown -->",
		},
		{
			name: "extends",
			tree: block(&ast.Extends{Path: "layouts/base"}, &ast.Extends{Path: "base.html"}),
			want: `{% extends "layouts/base.pug" %}{% extends "base.html" %}`,
		},
		{
			name: "conditional chain",
			tree: &ast.Conditional{Type: ast.CondIf, Sentence: "a", Block: block(text("1")), Next: []*ast.Conditional{
				{Type: ast.CondElif, Sentence: "b", Block: block(text("2"))},
				{Type: ast.CondElse, Block: block(text("3"))},
			}},
			want: "{% if a %}1{% elif b %}2{% else %}3{% endif %}",
		},
		{
			name: "unless",
			tree: &ast.Conditional{Type: ast.CondUnless, Sentence: "a or b", Block: block(text("x"))},
			want: "{% if not (a or b) %}x{% endif %}",
		},
		{
			name: "counter restored after call without block",
			tree: block(&ast.Mixin{Name: "m", Call: true}, &ast.CodeBlock{Name: "b"}),
			want: "{{m()}}{% block b %}{% endblock %}",
		},
		{
			name: "counter restored after definition",
			tree: block(&ast.Mixin{Name: "m", Block: block(&ast.CodeBlock{})}, &ast.CodeBlock{Name: "b"}),
			want: "{% macro m() %}{% if caller %}{{ caller() }}{% endif %}{% endmacro %}{% block b %}{% endblock %}",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compile(tc.tree, Options{})
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestRoundTripSmoke(t *testing.T) {
	tree := block(
		&ast.Assignment{Name: "x", Val: "1+1"},
		&ast.Code{Val: "x", Buffer: true, Escape: true},
	)
	got, err := Compile(tree, Options{VariableStart: "{{", VariableEnd: "}}"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if want := "{% set x = 1+1 %}{{x|escape}}"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCustomDelimitersAndVarProcessor(t *testing.T) {
	tree := block(
		&ast.Mixin{Name: "m", Block: block(&ast.CodeBlock{})},
		&ast.Code{Val: "name", Buffer: true, Escape: true},
		&ast.CodeBlock{Name: "b", Mode: ast.ModeAppend},
		&ast.Tag{Name: "i", Attrs: []ast.Attribute{{Name: "id", Val: "x"}}},
	)
	opts := Options{
		VariableStart: "[[",
		VariableEnd:   "]]",
		VarProcessor:  strings.ToUpper,
	}
	got, err := Compile(tree, opts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	want := "{% macro m() %}{% if caller %}[[ caller() ]]{% endif %}{% endmacro %}" +
		"[[NAME|escape]]" +
		"{% block b %}[[super()]]{% endblock %}" +
		`<i[[__pug_attrs([("id", x)])]]></i>`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestAutoClose(t *testing.T) {
	for _, kw := range autoClose {
		t.Run(kw, func(t *testing.T) {
			got, err := Compile(&ast.Code{Val: "  " + kw + " x", Block: block(text("."))}, Options{})
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			closer := "{% end" + kw + " %}"
			if n := strings.Count(got, closer); n != 1 || !strings.HasSuffix(got, closer) {
				t.Fatalf("want one trailing %s, got %q", closer, got)
			}
		})
	}
	for _, stmt := range []string{"set x = 1", "print x", "iffy", "elif x", "do x"} {
		t.Run(stmt, func(t *testing.T) {
			got, err := Compile(&ast.Code{Val: stmt, Block: block(text("."))}, Options{})
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			if strings.Contains(got, "{% end") {
				t.Fatalf("unexpected closer in %q", got)
			}
		})
	}
}

func TestMacroDirectivesBalance(t *testing.T) {
	tree := block(
		&ast.Mixin{Name: "a", Block: block(
			&ast.Mixin{Name: "b", Call: true, Block: block(
				&ast.Mixin{Name: "c", Call: true, Block: block(&ast.CodeBlock{})},
				&ast.CodeBlock{},
			)},
			&ast.Mixin{Name: "d", Call: true},
		)},
		&ast.Mixin{Name: "e", Block: block(&ast.CodeBlock{})},
	)
	got, err := Compile(tree, Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	for open, end := range map[string]string{"{% macro ": "{% endmacro %}", "{% call ": "{% endcall %}"} {
		depth := 0
		for i := 0; i < len(got); i++ {
			switch {
			case strings.HasPrefix(got[i:], open):
				depth++
			case strings.HasPrefix(got[i:], end):
				depth--
				if depth < 0 {
					t.Fatalf("%s before %s in %s", end, open, got)
				}
			}
		}
		if depth != 0 {
			t.Fatalf("unbalanced %s/%s in %s", open, end, got)
		}
	}
	// c is called at depth 3 and captures its own level's caller.
	for _, want := range []string{
		"{% set __pug_caller_2=caller %}{% call b() %}",
		"{% set __pug_caller_3=caller %}{% call c() %}{% if __pug_caller_3 %}{{ __pug_caller_3() }}{% endif %}{% endcall %}",
		"{% if __pug_caller_2 %}{{ __pug_caller_2() }}{% endif %}{% endcall %}",
		"{{d()}}",
		"{% macro e() %}{% if caller %}",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	tree := block(
		&ast.Doctype{Val: "html"},
		&ast.Tag{Name: "div", Attrs: []ast.Attribute{{Name: "b", Val: "1"}, {Name: "class", Val: "c"}, {Name: "a", Val: "2"}}},
		&ast.Mixin{Name: "m", Block: block(&ast.Each{Keys: []string{"k", "v"}, Obj: "o"})},
	)
	first, err := Compile(tree, Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	for range 5 {
		again, err := Compile(tree, Options{})
		if err != nil {
			t.Fatalf("compile error: %v", err)
		}
		if again != first {
			t.Fatalf("output changed between runs:\n%s\n%s", first, again)
		}
	}
}

// foreign is a node kind the generator has no rule for.
type foreign struct{ *ast.Text }

func TestUnknownNodeKind(t *testing.T) {
	tree := block(text("a"), foreign{text("b")})
	_, err := Compile(tree, Options{})
	var unk *UnknownNodeKindError
	if !errors.As(err, &unk) {
		t.Fatalf("want UnknownNodeKindError, got %v", err)
	}
	if !strings.Contains(err.Error(), "compiler.foreign") {
		t.Fatalf("error does not name the node type: %v", err)
	}
}

func TestInvalidConditionalType(t *testing.T) {
	_, err := Compile(&ast.Conditional{Type: "when"}, Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
}
