package jinja2

import (
	"fmt"
	"sort"
	"strings"
)

// Parse parses a Jinja2 template string into a Document AST using the
// default delimiters.
func Parse(src string) (*Document, error) {
	return ParseSyntax(src, DefaultSyntax)
}

// ParseSyntax parses src with the given delimiters. It recognizes text,
// output expressions, comments, and the statements if/elif/else, for/else,
// set, raw, block, extends, include, macro and call. Expressions inside tags
// are preserved as raw strings.
func ParseSyntax(src string, syn Syntax) (*Document, error) {
	p := &parser{l: newLexer(src, syn.withDefaults())}
	nodes, endTag, _, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	if endTag != "" {
		return nil, fmt.Errorf("unexpected %q outside of any block", endTag)
	}
	return &Document{Nodes: nodes}, nil
}

type parser struct {
	l *lexer
}

// closers lists the statements that end a body rather than start a node.
var closers = map[string]bool{
	"elif": true, "else": true, "endif": true, "endfor": true, "endblock": true,
	"endmacro": true, "endcall": true, "endraw": true,
}

// parseNodes parses until an ending statement with a name in `until` is
// encountered. If `until` is empty, parses to EOF.
func (p *parser) parseNodes(until map[string]bool) (nodes []Node, endTag, endArgs string, err error) {
	for {
		tok := p.l.nextTokenOutside()
		switch tok.kind {
		case tokEOF:
			if len(until) > 0 {
				return nil, "", "", fmt.Errorf("unexpected end of template, expected one of %s", keys(until))
			}
			return nodes, "", "", nil
		case tokText:
			if tok.val != "" {
				nodes = append(nodes, &TextNode{Text: tok.val})
			}
		case tokVarStart:
			expr, err := p.readUntil(tokVarEnd)
			if err != nil {
				return nil, "", "", err
			}
			nodes = append(nodes, &OutputNode{Expr: strings.TrimSpace(expr)})
		case tokCommStart:
			if _, err := p.readUntil(tokCommEnd); err != nil {
				return nil, "", "", err
			}
		case tokStmtStart:
			stmt, err := p.readUntil(tokStmtEnd)
			if err != nil {
				return nil, "", "", err
			}
			name, args := splitNameArgs(stmt)
			if until[name] {
				return nodes, name, args, nil
			}
			if closers[name] {
				if len(until) == 0 {
					return nodes, name, args, nil
				}
				return nil, "", "", fmt.Errorf("unexpected %q, expected one of %s", name, keys(until))
			}
			n, err := p.parseStatement(name, args)
			if err != nil {
				return nil, "", "", err
			}
			nodes = append(nodes, n)
		default:
			return nil, "", "", fmt.Errorf("unexpected token kind outside: %v", tok.kind)
		}
	}
}

func (p *parser) parseStatement(name, args string) (Node, error) {
	switch name {
	case "raw":
		text, ok := p.l.scanRaw()
		if !ok {
			return nil, fmt.Errorf("unterminated raw block; expected endraw")
		}
		return &RawNode{Text: text}, nil
	case "block":
		return p.parseBlock(args)
	case "extends":
		return parseExtends(args)
	case "include":
		return parseInclude(args)
	case "set":
		return parseSet(args)
	case "if":
		return p.parseIf(args)
	case "for":
		return p.parseFor(args)
	case "macro":
		return p.parseMacro(args)
	case "call":
		return p.parseCall(args)
	default:
		return nil, fmt.Errorf("unsupported statement: %q", name)
	}
}

func keys(m map[string]bool) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// readUntil collects tag content up to the closing delimiter of kind close.
func (p *parser) readUntil(close tokenKind) (string, error) {
	var b strings.Builder
	for {
		t := p.l.nextTokenInside(close)
		switch t.kind {
		case tokContent:
			b.WriteString(t.val)
		case close:
			if close == tokStmtEnd {
				return strings.TrimSpace(b.String()), nil
			}
			return b.String(), nil
		case tokEOF:
			return "", fmt.Errorf("unterminated tag at offset %d", t.pos)
		default:
			return "", fmt.Errorf("unexpected token inside tag: %v", t.kind)
		}
	}
}

func splitNameArgs(stmt string) (name, args string) {
	s := strings.TrimSpace(stmt)
	if s == "" {
		return "", ""
	}
	// First word is name.
	i := 0
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	name = s[:i]
	args = strings.TrimSpace(s[i:])
	return
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseSet(args string) (*SetNode, error) {
	// Split on the first '='
	i := strings.IndexRune(args, '=')
	if i < 0 {
		return nil, fmt.Errorf("invalid set statement, expected '=': %q", args)
	}
	name := strings.TrimSpace(args[:i])
	expr := strings.TrimSpace(args[i+1:])
	if !isIdent(name) || expr == "" {
		return nil, fmt.Errorf("invalid set statement %q", args)
	}
	return &SetNode{Name: name, Expr: expr}, nil
}

func (p *parser) parseIf(cond string) (*IfNode, error) {
	n := &IfNode{Cond: strings.TrimSpace(cond)}
	body, endTag, endArgs, err := p.parseNodes(map[string]bool{"elif": true, "else": true, "endif": true})
	if err != nil {
		return nil, err
	}
	n.Then = body
	for endTag == "elif" {
		branch := ElifBranch{Cond: strings.TrimSpace(endArgs)}
		body, endTag, endArgs, err = p.parseNodes(map[string]bool{"elif": true, "else": true, "endif": true})
		if err != nil {
			return nil, err
		}
		branch.Body = body
		n.Elifs = append(n.Elifs, branch)
	}
	if endTag == "else" {
		elseBody, _, _, err := p.parseNodes(map[string]bool{"endif": true})
		if err != nil {
			return nil, err
		}
		n.Else = elseBody
	}
	return n, nil
}

func (p *parser) parseFor(args string) (*ForNode, error) {
	// Expect: target in iterable
	parts := strings.SplitN(args, " in ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid for statement, expected 'target in iterable': %q", args)
	}
	targets, err := parseTargets(parts[0])
	if err != nil {
		return nil, err
	}
	iterable := strings.TrimSpace(parts[1])
	if iterable == "" {
		return nil, fmt.Errorf("invalid for statement, empty iterable")
	}
	n := &ForNode{Targets: targets, Iterable: iterable}
	body, endTag, _, err := p.parseNodes(map[string]bool{"else": true, "endfor": true})
	if err != nil {
		return nil, err
	}
	n.Body = body
	if endTag == "else" {
		elseBody, _, _, err := p.parseNodes(map[string]bool{"endfor": true})
		if err != nil {
			return nil, err
		}
		n.Else = elseBody
	}
	return n, nil
}

// parseTargets splits "k", "k, v" or "(k, v)" into names.
func parseTargets(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if !isIdent(t) {
			return nil, fmt.Errorf("invalid for target %q", s)
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *parser) parseBlock(args string) (*BlockNode, error) {
	// "scoped" and "required" modifiers are accepted and ignored.
	name, _ := splitNameArgs(args)
	if !isIdent(name) {
		return nil, fmt.Errorf("block requires a name")
	}
	body, _, endArgs, err := p.parseNodes(map[string]bool{"endblock": true})
	if err != nil {
		return nil, err
	}
	endName := strings.TrimSpace(endArgs)
	if endName != "" && endName != name {
		return nil, fmt.Errorf("endblock name %q does not match block name %q", endName, name)
	}
	return &BlockNode{Name: name, Body: body}, nil
}

func (p *parser) parseMacro(args string) (*MacroNode, error) {
	name, params, err := parseSignature(args)
	if err != nil {
		return nil, err
	}
	body, _, _, err := p.parseNodes(map[string]bool{"endmacro": true})
	if err != nil {
		return nil, err
	}
	return &MacroNode{Name: name, Params: params, Body: body}, nil
}

// parseSignature parses "name(a, b=1)".
func parseSignature(s string) (string, []Param, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("invalid macro signature %q", s)
	}
	name := strings.TrimSpace(s[:open])
	if !isIdent(name) {
		return "", nil, fmt.Errorf("invalid macro name %q", name)
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return name, nil, nil
	}
	var params []Param
	for _, part := range splitArgs(inner) {
		pname, def, hasDefault := strings.Cut(part, "=")
		pname = strings.TrimSpace(pname)
		if !isIdent(pname) {
			return "", nil, fmt.Errorf("invalid parameter %q in macro %s", part, name)
		}
		def = strings.TrimSpace(def)
		if hasDefault && def == "" {
			return "", nil, fmt.Errorf("empty default for parameter %s in macro %s", pname, name)
		}
		params = append(params, Param{Name: pname, Default: def})
	}
	return name, params, nil
}

func (p *parser) parseCall(args string) (*CallNode, error) {
	expr := strings.TrimSpace(args)
	if expr == "" || !strings.HasSuffix(expr, ")") {
		return nil, fmt.Errorf("call expects a macro invocation, got %q", args)
	}
	body, _, _, err := p.parseNodes(map[string]bool{"endcall": true})
	if err != nil {
		return nil, err
	}
	return &CallNode{Expr: expr, Body: body}, nil
}

func parseExtends(args string) (*ExtendsNode, error) {
	t, ok := parseQuoted(args)
	if !ok || t == "" {
		return nil, fmt.Errorf("extends expects a quoted template name")
	}
	return &ExtendsNode{Template: t}, nil
}

func parseInclude(args string) (*IncludeNode, error) {
	t, ok := parseQuoted(args)
	if !ok || t == "" {
		return nil, fmt.Errorf("include expects a quoted template name")
	}
	return &IncludeNode{Template: t}, nil
}

func parseQuoted(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return "", false
	}
	inner := s[1 : len(s)-1]
	return inner, true
}
