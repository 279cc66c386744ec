package ast

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseTree(t *testing.T) {
	src := `
nodes:
  - kind: extends
    path: layout
  - kind: codeblock
    name: content
    mode: append
    block:
      - kind: assignment
        name: x
        val: 1+1
      - kind: code
        val: x
        buffer: true
        escape: true
      - kind: tag
        name: a
        attrs:
          - {name: href, val: url}
          - {name: class, val: "'btn'"}
        block:
          - kind: text
            val: go
      - kind: each
        keys: [k, v]
        obj: items
      - kind: conditional
        type: if
        sentence: a
        next:
          - kind: conditional
            type: elif
            sentence: b
          - kind: conditional
            type: else
  - kind: mixin
    name: card
    args: title
    call: true
  - kind: include
    path: /partials/footer
  - kind: comment
    val: note
    buffer: true
  - kind: doctype
    val: html
`
	got, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	want := &Block{Nodes: []Node{
		&Extends{Path: "layout"},
		&CodeBlock{Name: "content", Mode: ModeAppend, Block: &Block{Nodes: []Node{
			&Assignment{Name: "x", Val: "1+1"},
			&Code{Val: "x", Buffer: true, Escape: true},
			&Tag{Name: "a", Attrs: []Attribute{{Name: "href", Val: "url"}, {Name: "class", Val: "'btn'"}}, Block: &Block{Nodes: []Node{
				&Text{Val: "go"},
			}}},
			&Each{Keys: []string{"k", "v"}, Obj: "items"},
			&Conditional{Type: CondIf, Sentence: "a", Next: []*Conditional{
				{Type: CondElif, Sentence: "b"},
				{Type: CondElse},
			}},
		}}},
		&Mixin{Name: "card", Args: "title", Call: true},
		&Include{Path: "/partials/footer"},
		&Comment{Val: "note", Buffer: true},
		&Doctype{Val: "html"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tree mismatch\ngot:\n%s\nwant:\n%s", Pretty(got), Pretty(want))
	}
}

func TestParseDefaults(t *testing.T) {
	got, err := Parse([]byte("- kind: codeblock\n  name: body\n"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cb := got.Nodes[0].(*CodeBlock)
	if cb.Mode != ModeReplace || cb.Block != nil {
		t.Fatalf("unexpected defaults: %#v", cb)
	}

	for _, src := range []string{"", "nodes: []", "[]"} {
		b, err := Parse([]byte(src))
		if err != nil || len(b.Nodes) != 0 {
			t.Fatalf("Parse(%q) = %v, %v; want empty block", src, b, err)
		}
	}
}

func TestChildBlockForms(t *testing.T) {
	seq := "- kind: tag\n  name: p\n  block:\n    - kind: text\n      val: x\n"
	mapped := "- kind: tag\n  name: p\n  block:\n    nodes:\n      - kind: text\n        val: x\n"
	empty := "- kind: tag\n  name: p\n  block: {}\n"

	want, err := Parse([]byte(seq))
	if err != nil {
		t.Fatalf("sequence form: %v", err)
	}
	got, err := Parse([]byte(mapped))
	if err != nil {
		t.Fatalf("mapping form: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mapping form = %#v, want %#v", got.Nodes[0], want.Nodes[0])
	}
	b, err := Parse([]byte(empty))
	if err != nil {
		t.Fatalf("empty mapping: %v", err)
	}
	if tag := b.Nodes[0].(*Tag); tag.Block == nil || len(tag.Block.Nodes) != 0 {
		t.Fatalf("empty mapping block = %#v", tag.Block)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		msg  string
	}{
		{"scalar root", "hello", "document must be"},
		{"unknown kind", "- kind: video", `unknown node kind "video"`},
		{"missing kind", "- name: x", "node has no kind"},
		{"unknown field", "- kind: text\n  value: x", `unknown field "value"`},
		{"missing required", "- kind: assignment\n  name: x", `missing required field "val"`},
		{"bad mode", "- kind: codeblock\n  name: b\n  mode: before", "invalid block mode"},
		{"too many keys", "- kind: each\n  keys: [a, b, c]\n  obj: xs", "one or two keys"},
		{"bad boolean", "- kind: code\n  val: x\n  buffer: maybe", "buffer must be a boolean"},
		{"bad next", "- kind: conditional\n  type: if\n  sentence: a\n  next:\n    - kind: conditional\n      type: if\n      sentence: b", "next may only hold"},
		{"bad conditional type", "- kind: conditional\n  type: when", "invalid conditional type"},
		{"root extra key", "nodes: []\nother: 1", `unknown field "other"`},
		{"block extra key", "- kind: tag\n  name: p\n  block:\n    items: []", `unknown field "items"`},
		{"scalar block", "- kind: tag\n  name: p\n  block: x", "expected a node sequence"},
		{"syntax", "- kind: [", "tree:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not mention %q", err, tc.msg)
			}
		})
	}
}

func TestDecodeErrorPosition(t *testing.T) {
	_, err := Parse([]byte("- kind: text\n  val: a\n- kind: nope\n"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("want *DecodeError, got %T: %v", err, err)
	}
	if de.Line != 3 {
		t.Fatalf("error line = %d, want 3", de.Line)
	}
}

func TestWalkVisitsEveryNode(t *testing.T) {
	tree := &Block{Nodes: []Node{
		&Tag{Name: "div", Block: &Block{Nodes: []Node{&Text{Val: "a"}}}},
		&Conditional{Type: CondIf, Sentence: "x", Block: &Block{Nodes: []Node{&Text{Val: "b"}}}, Next: []*Conditional{
			{Type: CondElse, Block: &Block{Nodes: []Node{&Text{Val: "c"}}}},
		}},
		&Mixin{Name: "m"},
	}}
	var texts []string
	count := 0
	err := Walk(VisitorFunc(func(n Node) error {
		count++
		if tx, ok := n.(*Text); ok {
			texts = append(texts, tx.Val)
		}
		return nil
	}), tree)
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}
	if strings.Join(texts, "") != "abc" {
		t.Fatalf("texts visited in wrong order: %v", texts)
	}
	// root, tag, tag block, text, cond, cond block, text, else, else block, text, mixin
	if count != 11 {
		t.Fatalf("visited %d nodes, want 11", count)
	}

	stop := errors.New("stop")
	if err := Walk(VisitorFunc(func(Node) error { return stop }), tree); err != stop {
		t.Fatalf("walk did not propagate visitor error: %v", err)
	}
}
