package ast

// Node is any node of a parsed template tree.
type Node interface {
	node()
}

// Block is an ordered sequence of nodes. It is also the root produced by Parse.
type Block struct {
	Nodes []Node
}

func (*Block) node() {}

// BlockMode selects how an overriding CodeBlock combines with its parent.
type BlockMode string

const (
	ModeReplace BlockMode = "replace"
	ModeAppend  BlockMode = "append"
	ModePrepend BlockMode = "prepend"
)

// CodeBlock is a named region that child templates may override.
type CodeBlock struct {
	Name  string
	Mode  BlockMode
	Block *Block
}

func (*CodeBlock) node() {}

// Mixin is either a mixin definition or, when Call is set, an invocation.
// Args is the raw parameter (or argument) list.
type Mixin struct {
	Name  string
	Args  string
	Call  bool
	Block *Block
}

func (*Mixin) node() {}

// Assignment binds Name to the raw expression Val.
type Assignment struct {
	Name string
	Val  string
}

func (*Assignment) node() {}

// Code is inline code. Buffered code outputs the value of Val, unbuffered
// code is emitted as a statement and may carry a body.
type Code struct {
	Val    string
	Buffer bool
	Escape bool
	Block  *Block
}

func (*Code) node() {}

// Each iterates Obj binding one or two names per element.
type Each struct {
	Keys  []string
	Obj   string
	Block *Block
}

func (*Each) node() {}

// Include inlines another template file.
type Include struct {
	Path string
}

func (*Include) node() {}

// Extends declares the parent template.
type Extends struct {
	Path string
}

func (*Extends) node() {}

// Attribute is a single tag attribute. Val is a raw expression, so literal
// strings keep their quotes.
type Attribute struct {
	Name string
	Val  string
}

// Tag is an HTML element.
type Tag struct {
	Name        string
	Attrs       []Attribute
	SelfClosing bool
	Block       *Block
}

func (*Tag) node() {}

// Text is literal output.
type Text struct {
	Val string
}

func (*Text) node() {}

// Comment is an HTML comment. Unbuffered comments produce no output.
type Comment struct {
	Val    string
	Buffer bool
}

func (*Comment) node() {}

// Doctype emits a document type declaration.
type Doctype struct {
	Val string
}

func (*Doctype) node() {}

// ConditionalType is the keyword of one link of a conditional chain.
type ConditionalType string

const (
	CondIf     ConditionalType = "if"
	CondUnless ConditionalType = "unless"
	CondElif   ConditionalType = "elif"
	CondElse   ConditionalType = "else"
)

// Conditional is an if/unless chain. Next holds the elif and else links in
// order; only the head of a chain carries them.
type Conditional struct {
	Type     ConditionalType
	Sentence string
	Block    *Block
	Next     []*Conditional
}

func (*Conditional) node() {}

var (
	_ Node = &Block{}
	_ Node = &CodeBlock{}
	_ Node = &Mixin{}
	_ Node = &Assignment{}
	_ Node = &Code{}
	_ Node = &Each{}
	_ Node = &Include{}
	_ Node = &Extends{}
	_ Node = &Tag{}
	_ Node = &Text{}
	_ Node = &Comment{}
	_ Node = &Doctype{}
	_ Node = &Conditional{}
)
