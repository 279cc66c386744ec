package jinja2

import (
	"regexp"
	"strings"
)

// The lexer scans template source and yields tokens for text and the three
// Jinja2 delimiter forms: variables {{ }}, statements {% %}, and comments {# #}.
// A '-' just inside a delimiter strips the whitespace on that side of the tag.

// Syntax holds the delimiters of a template dialect.
type Syntax struct {
	VariableStart string
	VariableEnd   string
	BlockStart    string
	BlockEnd      string
	CommentStart  string
	CommentEnd    string
}

// DefaultSyntax is the standard Jinja2 syntax.
var DefaultSyntax = Syntax{
	VariableStart: "{{",
	VariableEnd:   "}}",
	BlockStart:    "{%",
	BlockEnd:      "%}",
	CommentStart:  "{#",
	CommentEnd:    "#}",
}

// withDefaults fills unset delimiters from DefaultSyntax.
func (s Syntax) withDefaults() Syntax {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.VariableStart, DefaultSyntax.VariableStart)
	fill(&s.VariableEnd, DefaultSyntax.VariableEnd)
	fill(&s.BlockStart, DefaultSyntax.BlockStart)
	fill(&s.BlockEnd, DefaultSyntax.BlockEnd)
	fill(&s.CommentStart, DefaultSyntax.CommentStart)
	fill(&s.CommentEnd, DefaultSyntax.CommentEnd)
	return s
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokText
	tokVarStart  // {{ or {{-
	tokVarEnd    // }} or -}}
	tokStmtStart // {% or {%-
	tokStmtEnd   // %} or -%}
	tokCommStart // {#
	tokCommEnd   // #}
	tokContent   // content inside a tag (parser requests it)
)

type token struct {
	kind tokenKind
	val  string
	pos  int // byte offset in source
}

type lexer struct {
	src string
	i   int
	syn Syntax
	// trimNext strips leading whitespace from the next text token.
	trimNext bool
	endraw   *regexp.Regexp
}

func newLexer(src string, syn Syntax) *lexer {
	return &lexer{src: src, syn: syn}
}

// opening returns the kind of opening delimiter at offset i, its length
// and whether it carries the trim marker.
func (l *lexer) opening(i int) (tokenKind, int, bool) {
	rest := l.src[i:]
	for _, d := range []struct {
		delim string
		kind  tokenKind
	}{
		{l.syn.CommentStart, tokCommStart},
		{l.syn.BlockStart, tokStmtStart},
		{l.syn.VariableStart, tokVarStart},
	} {
		if strings.HasPrefix(rest, d.delim) {
			n := len(d.delim)
			trim := strings.HasPrefix(rest[n:], "-")
			if trim {
				n++
			}
			return d.kind, n, trim
		}
	}
	return tokEOF, 0, false
}

func (l *lexer) text(s string, pos int) token {
	if l.trimNext {
		s = strings.TrimLeft(s, " \t\r\n")
		l.trimNext = false
	}
	return token{kind: tokText, val: s, pos: pos}
}

// nextTokenOutside scans in normal text context and emits either a text token
// up to the next opening delimiter, or an opening delimiter token, or EOF.
func (l *lexer) nextTokenOutside() token {
	if l.i >= len(l.src) {
		return token{kind: tokEOF, pos: l.i}
	}
	start := l.i
	for l.i < len(l.src) {
		kind, n, trim := l.opening(l.i)
		if kind == tokEOF {
			l.i++
			continue
		}
		if l.i > start {
			t := l.text(l.src[start:l.i], start)
			if trim {
				t.val = strings.TrimRight(t.val, " \t\r\n")
			}
			return t
		}
		l.trimNext = false
		l.i += n
		return token{kind: kind, pos: start}
	}
	return l.text(l.src[start:], start)
}

// nextTokenInside scans inside a tag of the given closing kind, returning
// either tokContent chunks or the appropriate closing token.
func (l *lexer) nextTokenInside(close tokenKind) token {
	if l.i >= len(l.src) {
		return token{kind: tokEOF, pos: l.i}
	}
	var delim string
	switch close {
	case tokVarEnd:
		delim = l.syn.VariableEnd
	case tokStmtEnd:
		delim = l.syn.BlockEnd
	case tokCommEnd:
		delim = l.syn.CommentEnd
	}
	start := l.i
	for l.i < len(l.src) {
		rest := l.src[l.i:]
		trim := close != tokCommEnd && strings.HasPrefix(rest, "-"+delim)
		if !trim && !strings.HasPrefix(rest, delim) {
			l.i++
			continue
		}
		if l.i > start {
			return token{kind: tokContent, val: l.src[start:l.i], pos: start}
		}
		l.i += len(delim)
		if trim {
			l.i++
			l.trimNext = true
		}
		return token{kind: close, pos: start}
	}
	// Unterminated tag; return remaining content then EOF.
	return token{kind: tokContent, val: l.src[start:], pos: start}
}

// scanRaw returns the source up to the endraw statement and moves past it.
func (l *lexer) scanRaw() (string, bool) {
	if l.endraw == nil {
		l.endraw = regexp.MustCompile(regexp.QuoteMeta(l.syn.BlockStart) + `-?\s*endraw\s*(-?)` + regexp.QuoteMeta(l.syn.BlockEnd))
	}
	loc := l.endraw.FindStringSubmatchIndex(l.src[l.i:])
	if loc == nil {
		return "", false
	}
	text := l.src[l.i : l.i+loc[0]]
	if l.trimNext {
		text = strings.TrimLeft(text, " \t\r\n")
	}
	l.trimNext = loc[3] > loc[2]
	l.i += loc[1]
	return text, true
}
