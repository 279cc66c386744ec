package ast

import (
	"bytes"
	"fmt"
	"strings"
)

type Visitor interface {
	Visit(n Node) error
}

// Walk calls v.Visit for n and then for every descendant, depth first.
// Nil blocks are skipped.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *Block:
		for _, c := range t.Nodes {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
	case *CodeBlock:
		return walkBlock(v, t.Block)
	case *Mixin:
		return walkBlock(v, t.Block)
	case *Code:
		return walkBlock(v, t.Block)
	case *Each:
		return walkBlock(v, t.Block)
	case *Tag:
		return walkBlock(v, t.Block)
	case *Conditional:
		if err := walkBlock(v, t.Block); err != nil {
			return err
		}
		for _, next := range t.Next {
			if err := Walk(v, next); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkBlock(v Visitor, b *Block) error {
	if b == nil {
		return nil
	}
	return Walk(v, b)
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Pretty returns a line-oriented string representation of the tree.
func Pretty(n Node) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, n)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	buf.WriteString(strings.Repeat(" ", indent))
	switch t := n.(type) {
	case *Block:
		buf.WriteString("Block\n")
		for _, c := range t.Nodes {
			ppNode(buf, indent+2, c)
		}
		return
	case *CodeBlock:
		fmt.Fprintf(buf, "CodeBlock(%s, %s)\n", t.Name, t.Mode)
		ppBlock(buf, indent, t.Block)
	case *Mixin:
		if t.Call {
			fmt.Fprintf(buf, "MixinCall(%s(%s))\n", t.Name, t.Args)
		} else {
			fmt.Fprintf(buf, "Mixin(%s(%s))\n", t.Name, t.Args)
		}
		ppBlock(buf, indent, t.Block)
	case *Assignment:
		fmt.Fprintf(buf, "Assignment(%s = %q)\n", t.Name, t.Val)
	case *Code:
		fmt.Fprintf(buf, "Code(%q, buffer=%t, escape=%t)\n", t.Val, t.Buffer, t.Escape)
		ppBlock(buf, indent, t.Block)
	case *Each:
		fmt.Fprintf(buf, "Each(%s in %q)\n", strings.Join(t.Keys, ", "), t.Obj)
		ppBlock(buf, indent, t.Block)
	case *Include:
		fmt.Fprintf(buf, "Include(%q)\n", t.Path)
	case *Extends:
		fmt.Fprintf(buf, "Extends(%q)\n", t.Path)
	case *Tag:
		fmt.Fprintf(buf, "Tag(%s", t.Name)
		for _, a := range t.Attrs {
			fmt.Fprintf(buf, " %s=%s", a.Name, a.Val)
		}
		buf.WriteString(")\n")
		ppBlock(buf, indent, t.Block)
	case *Text:
		fmt.Fprintf(buf, "Text(%q)\n", t.Val)
	case *Comment:
		fmt.Fprintf(buf, "Comment(%q, buffer=%t)\n", t.Val, t.Buffer)
	case *Doctype:
		fmt.Fprintf(buf, "Doctype(%q)\n", t.Val)
	case *Conditional:
		fmt.Fprintf(buf, "Conditional(%s %q)\n", t.Type, t.Sentence)
		ppBlock(buf, indent, t.Block)
		for _, next := range t.Next {
			ppNode(buf, indent, next)
		}
	default:
		fmt.Fprintf(buf, "%T\n", n)
	}
}

func ppBlock(buf *bytes.Buffer, indent int, b *Block) {
	if b == nil {
		return
	}
	for _, c := range b.Nodes {
		ppNode(buf, indent+2, c)
	}
}
