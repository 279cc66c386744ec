package jinja2

import (
	"bytes"
	"fmt"
	"strings"
)

type Visitor interface {
	Visit(n Node) error
}

func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *Document:
		return walkAll(v, t.Nodes)
	case *IfNode:
		if err := walkAll(v, t.Then); err != nil {
			return err
		}
		for _, e := range t.Elifs {
			if err := walkAll(v, e.Body); err != nil {
				return err
			}
		}
		return walkAll(v, t.Else)
	case *ForNode:
		if err := walkAll(v, t.Body); err != nil {
			return err
		}
		return walkAll(v, t.Else)
	case *BlockNode:
		return walkAll(v, t.Body)
	case *MacroNode:
		return walkAll(v, t.Body)
	case *CallNode:
		return walkAll(v, t.Body)
	}
	return nil
}

func walkAll(v Visitor, nodes []Node) error {
	for _, c := range nodes {
		if err := Walk(v, c); err != nil {
			return err
		}
	}
	return nil
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Pretty returns a line-oriented string representation of the AST.
func Pretty(doc *Document) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, doc)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := func() { buf.WriteString(strings.Repeat(" ", indent)) }
	body := func(nodes []Node) {
		for _, c := range nodes {
			ppNode(buf, indent+2, c)
		}
	}
	ind()
	switch t := n.(type) {
	case *Document:
		buf.WriteString("Document\n")
		body(t.Nodes)
	case *TextNode:
		fmt.Fprintf(buf, "Text(%q)\n", t.Text)
	case *OutputNode:
		fmt.Fprintf(buf, "Output(%q)\n", t.Expr)
	case *SetNode:
		fmt.Fprintf(buf, "Set(%s = %q)\n", t.Name, t.Expr)
	case *IfNode:
		fmt.Fprintf(buf, "If(%q)\n", t.Cond)
		body(t.Then)
		for _, e := range t.Elifs {
			ind()
			fmt.Fprintf(buf, "Elif(%q)\n", e.Cond)
			body(e.Body)
		}
		if len(t.Else) > 0 {
			ind()
			buf.WriteString("Else\n")
			body(t.Else)
		}
	case *ForNode:
		fmt.Fprintf(buf, "For(%s in %q)\n", strings.Join(t.Targets, ", "), t.Iterable)
		body(t.Body)
		if len(t.Else) > 0 {
			ind()
			buf.WriteString("Else\n")
			body(t.Else)
		}
	case *RawNode:
		fmt.Fprintf(buf, "Raw(%q)\n", t.Text)
	case *BlockNode:
		fmt.Fprintf(buf, "Block(%s)\n", t.Name)
		body(t.Body)
	case *ExtendsNode:
		fmt.Fprintf(buf, "Extends(%q)\n", t.Template)
	case *IncludeNode:
		fmt.Fprintf(buf, "Include(%q)\n", t.Template)
	case *MacroNode:
		names := make([]string, len(t.Params))
		for i, p := range t.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(buf, "Macro(%s(%s))\n", t.Name, strings.Join(names, ", "))
		body(t.Body)
	case *CallNode:
		fmt.Fprintf(buf, "Call(%q)\n", t.Expr)
		body(t.Body)
	default:
		fmt.Fprintf(buf, "%T\n", n)
	}
}
