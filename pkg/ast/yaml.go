package ast

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// A tree file is a YAML serialization of a parsed template. The document is
// either a sequence of nodes or a mapping with a single "nodes" key. Every
// node is a mapping with a "kind" key naming the node type, e.g.
//
//	nodes:
//	  - kind: assignment
//	    name: x
//	    val: 1+1
//	  - kind: code
//	    val: x
//	    buffer: true
//	    escape: true
//
// Child blocks go under "block" in either form.

// DecodeError reports a malformed tree file.
type DecodeError struct {
	Line   int
	Column int
	Msg    string
}

func (e *DecodeError) Error() string {
	if e.Line == 0 {
		return "tree: " + e.Msg
	}
	return fmt.Sprintf("tree: line %d:%d: %s", e.Line, e.Column, e.Msg)
}

func errorAt(n *yaml.Node, format string, args ...any) error {
	return &DecodeError{Line: n.Line, Column: n.Column, Msg: fmt.Sprintf(format, args...)}
}

// fields lists the keys accepted for every kind, besides "kind" itself.
var fields = map[string][]string{
	"block":       {"nodes"},
	"codeblock":   {"name", "mode", "block"},
	"mixin":       {"name", "args", "call", "block"},
	"assignment":  {"name", "val"},
	"code":        {"val", "buffer", "escape", "block"},
	"each":        {"keys", "obj", "block"},
	"include":     {"path"},
	"extends":     {"path"},
	"tag":         {"name", "attrs", "self_closing", "block"},
	"text":        {"val"},
	"comment":     {"val", "buffer"},
	"doctype":     {"val"},
	"conditional": {"type", "sentence", "block", "next"},
}

// Parse decodes a tree file into its root block.
func Parse(src []byte) (*Block, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &Block{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode && root.Kind != yaml.MappingNode {
		return nil, errorAt(root, "document must be a node sequence or a mapping with \"nodes\"")
	}
	return decodeBlock(root)
}

// Parser adapts Parse to the compiler's parser collaborator interface.
type Parser struct{}

func (Parser) Parse(src []byte) (*Block, error) { return Parse(src) }

// mapping indexes a YAML mapping by key, rejecting keys outside allowed.
func mapping(n *yaml.Node, allowed []string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !slices.Contains(allowed, k.Value) {
			return nil, errorAt(k, "unknown field %q", k.Value)
		}
		if _, dup := out[k.Value]; dup {
			return nil, errorAt(k, "duplicate field %q", k.Value)
		}
		out[k.Value] = v
	}
	return out, nil
}

// decodeBlock accepts a node sequence or a mapping with a "nodes" sequence.
func decodeBlock(n *yaml.Node) (*Block, error) {
	if n.Kind == yaml.MappingNode {
		m, err := mapping(n, []string{"nodes"})
		if err != nil {
			return nil, err
		}
		nodes, ok := m["nodes"]
		if !ok {
			return &Block{}, nil
		}
		n = nodes
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "expected a node sequence")
	}
	b := &Block{Nodes: make([]Node, 0, len(n.Content))}
	for _, item := range n.Content {
		node, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		b.Nodes = append(b.Nodes, node)
	}
	return b, nil
}

func optionalBlock(m map[string]*yaml.Node) (*Block, error) {
	n, ok := m["block"]
	if !ok {
		return nil, nil
	}
	return decodeBlock(n)
}

func decodeNode(n *yaml.Node) (Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "expected a node mapping")
	}
	kind := ""
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "kind" {
			kind = n.Content[i+1].Value
		}
	}
	if kind == "" {
		return nil, errorAt(n, "node has no kind")
	}
	allowed, ok := fields[kind]
	if !ok {
		return nil, errorAt(n, "unknown node kind %q", kind)
	}
	m, err := mapping(n, append([]string{"kind"}, allowed...))
	if err != nil {
		return nil, err
	}
	d := decoder{m: m, at: n}

	switch kind {
	case "block":
		nodes, ok := m["nodes"]
		if !ok {
			return &Block{}, nil
		}
		return decodeBlock(nodes)
	case "codeblock":
		mode := BlockMode(d.str("mode"))
		switch mode {
		case "":
			mode = ModeReplace
		case ModeReplace, ModeAppend, ModePrepend:
		default:
			return nil, errorAt(m["mode"], "invalid block mode %q", mode)
		}
		block, err := optionalBlock(m)
		if err != nil {
			return nil, err
		}
		// A bare block inside a mixin has no name.
		return &CodeBlock{Name: d.str("name"), Mode: mode, Block: block}, d.err
	case "mixin":
		block, err := optionalBlock(m)
		if err != nil {
			return nil, err
		}
		return &Mixin{Name: d.required("name"), Args: d.str("args"), Call: d.boolean("call"), Block: block}, d.err
	case "assignment":
		return &Assignment{Name: d.required("name"), Val: d.required("val")}, d.err
	case "code":
		block, err := optionalBlock(m)
		if err != nil {
			return nil, err
		}
		return &Code{Val: d.str("val"), Buffer: d.boolean("buffer"), Escape: d.boolean("escape"), Block: block}, d.err
	case "each":
		keys := d.strings("keys")
		if d.err == nil && (len(keys) < 1 || len(keys) > 2) {
			return nil, errorAt(n, "each takes one or two keys, got %d", len(keys))
		}
		block, err := optionalBlock(m)
		if err != nil {
			return nil, err
		}
		return &Each{Keys: keys, Obj: d.required("obj"), Block: block}, d.err
	case "include":
		return &Include{Path: d.required("path")}, d.err
	case "extends":
		return &Extends{Path: d.required("path")}, d.err
	case "tag":
		attrs, err := decodeAttrs(m["attrs"])
		if err != nil {
			return nil, err
		}
		block, err := optionalBlock(m)
		if err != nil {
			return nil, err
		}
		return &Tag{Name: d.required("name"), Attrs: attrs, SelfClosing: d.boolean("self_closing"), Block: block}, d.err
	case "text":
		return &Text{Val: d.str("val")}, d.err
	case "comment":
		return &Comment{Val: d.str("val"), Buffer: d.boolean("buffer")}, d.err
	case "doctype":
		return &Doctype{Val: d.str("val")}, d.err
	case "conditional":
		return decodeConditional(n, m, d)
	}
	return nil, errorAt(n, "unknown node kind %q", kind)
}

func decodeConditional(n *yaml.Node, m map[string]*yaml.Node, d decoder) (*Conditional, error) {
	typ := ConditionalType(d.required("type"))
	switch typ {
	case CondIf, CondUnless, CondElif, CondElse:
	default:
		if d.err != nil {
			return nil, d.err
		}
		return nil, errorAt(m["type"], "invalid conditional type %q", typ)
	}
	block, err := optionalBlock(m)
	if err != nil {
		return nil, err
	}
	c := &Conditional{Type: typ, Sentence: d.str("sentence"), Block: block}
	if next, ok := m["next"]; ok {
		if next.Kind != yaml.SequenceNode {
			return nil, errorAt(next, "next must be a sequence of conditionals")
		}
		for _, item := range next.Content {
			node, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			link, ok := node.(*Conditional)
			if !ok || link.Type == CondIf || link.Type == CondUnless {
				return nil, errorAt(item, "next may only hold elif and else conditionals")
			}
			c.Next = append(c.Next, link)
		}
	}
	return c, d.err
}

func decodeAttrs(n *yaml.Node) ([]Attribute, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "attrs must be a sequence")
	}
	attrs := make([]Attribute, 0, len(n.Content))
	for _, item := range n.Content {
		m, err := mapping(item, []string{"name", "val"})
		if err != nil {
			return nil, err
		}
		d := decoder{m: m, at: item}
		attrs = append(attrs, Attribute{Name: d.required("name"), Val: d.str("val")})
		if d.err != nil {
			return nil, d.err
		}
	}
	return attrs, nil
}

// decoder reads scalar fields from a node mapping, keeping the first error.
type decoder struct {
	m   map[string]*yaml.Node
	at  *yaml.Node
	err error
}

func (d *decoder) str(key string) string {
	n, ok := d.m[key]
	if !ok || d.err != nil {
		return ""
	}
	if n.Kind != yaml.ScalarNode {
		d.err = errorAt(n, "%s must be a scalar", key)
		return ""
	}
	return n.Value
}

func (d *decoder) required(key string) string {
	if _, ok := d.m[key]; !ok && d.err == nil {
		d.err = errorAt(d.at, "missing required field %q", key)
		return ""
	}
	s := d.str(key)
	if d.err == nil && strings.TrimSpace(s) == "" {
		d.err = errorAt(d.m[key], "%s must not be empty", key)
	}
	return s
}

func (d *decoder) boolean(key string) bool {
	n, ok := d.m[key]
	if !ok || d.err != nil {
		return false
	}
	var b bool
	if err := n.Decode(&b); err != nil {
		d.err = errorAt(n, "%s must be a boolean", key)
		return false
	}
	return b
}

func (d *decoder) strings(key string) []string {
	n, ok := d.m[key]
	if !ok || d.err != nil {
		return nil
	}
	var out []string
	if err := n.Decode(&out); err != nil {
		d.err = errorAt(n, "%s must be a list of strings", key)
		return nil
	}
	return out
}
