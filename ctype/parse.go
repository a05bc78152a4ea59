package ctype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/structrecover/ctype/internal/token"
	"github.com/wippyai/structrecover/errors"
)

// Resolver looks up non-builtin type names.
type Resolver interface {
	Lookup(name string) (*Type, bool)
}

var callConvs = map[string]bool{
	"__cdecl":      true,
	"__stdcall":    true,
	"__fastcall":   true,
	"__thiscall":   true,
	"__usercall":   true,
	"__userpurge":  true,
	"__vectorcall": true,
	"__clrcall":    true,
	"__pascal":     true,
}

var qualifiers = map[string]bool{
	"const":    true,
	"volatile": true,
	"__hidden": true,
	"__unused": true,
}

type parser struct {
	res     Resolver
	self    *Type
	tokens  []token.Token
	pos     int
	ptrSize int
}

func newParser(text string, res Resolver, ptrSize int) *parser {
	return &parser{
		tokens:  token.Tokenize(text),
		res:     res,
		ptrSize: ptrSize,
	}
}

// ParseDeclaration parses a struct declaration as printed by
// Type.Declaration. Members are laid out back to back in declaration order.
func ParseDeclaration(text string, res Resolver, ptrSize int) (*Type, error) {
	p := newParser(text, res, ptrSize)
	t, err := p.parseStruct()
	if err != nil {
		return nil, errors.ParseFailed("declaration", err)
	}
	return t, nil
}

// ParseType parses a type label such as "int", "_DWORD *" or "char[16]".
func ParseType(text string, res Resolver, ptrSize int) (*Type, error) {
	p := newParser(text, res, ptrSize)
	t, err := p.parseAbstract()
	if err != nil {
		return nil, errors.ParseFailed("type "+strconv.Quote(text), err)
	}
	return t, nil
}

// ParseSignature parses a function signature such as
// "int __thiscall(Foo *this, int a)". A function name before the
// parameter list is accepted and ignored.
func ParseSignature(text string, res Resolver, ptrSize int) (*Type, error) {
	p := newParser(text, res, ptrSize)
	t, err := p.parseSignature()
	if err != nil {
		return nil, errors.ParseFailed("signature "+strconv.Quote(text), err)
	}
	return t, nil
}

func (p *parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) peekPunct(v string) bool {
	t := p.peek()
	return t != nil && t.Is(v)
}

func (p *parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) expectPunct(v string) error {
	t := p.next()
	if t == nil {
		return fmt.Errorf("unexpected end of input, expected %q", v)
	}
	if !t.Is(v) {
		return fmt.Errorf("line %d: expected %q, got %q", t.Line, v, t.Value)
	}
	return nil
}

func (p *parser) expectIdent() (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input, expected identifier")
	}
	if t.Type != token.Ident {
		return nil, fmt.Errorf("line %d: expected identifier, got %q", t.Line, t.Value)
	}
	return t, nil
}

func (p *parser) done() error {
	if t := p.peek(); t != nil {
		return fmt.Errorf("line %d: unexpected %q", t.Line, t.Value)
	}
	return nil
}

func (p *parser) parseStruct() (*Type, error) {
	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if kw.Value != "struct" {
		return nil, fmt.Errorf("line %d: expected struct, got %q", kw.Line, kw.Value)
	}
	// attributes such as __cppobj
	for p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == token.Ident &&
		strings.HasPrefix(p.tokens[p.pos].Value, "__") {
		p.next()
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	p.self = &Type{Kind: KindStruct, Name: name.Value}

	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	offset := 0
	for !p.peekPunct("}") {
		if p.peek() == nil {
			return nil, fmt.Errorf("unexpected end of input in struct %s", name.Value)
		}
		base, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		mname, mt, err := p.parseDeclarator(base)
		if err != nil {
			return nil, err
		}
		if mname == "" {
			return nil, fmt.Errorf("struct %s: unnamed member at offset %d", name.Value, offset)
		}
		size := mt.Size()
		p.self.Members = append(p.self.Members, Member{Type: mt, Name: mname, Offset: offset, Size: size})
		offset += size
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
	}
	p.next()
	if p.peekPunct(";") {
		p.next()
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	return p.self, nil
}

func (p *parser) parseAbstract() (*Type, error) {
	base, err := p.parseTypeSpec()
	if err != nil {
		return nil, err
	}
	name, t, err := p.parseDeclarator(base)
	if err != nil {
		return nil, err
	}
	if name != "" {
		return nil, fmt.Errorf("unexpected name %q in type", name)
	}
	return t, p.done()
}

func (p *parser) parseSignature() (*Type, error) {
	ret, err := p.parseTypeSpec()
	if err != nil {
		return nil, err
	}
	ret = p.parsePointers(ret)
	cc := ""
	if t := p.peek(); t != nil && t.Type == token.Ident && callConvs[t.Value] {
		cc = t.Value
		p.next()
	}
	if t := p.peek(); t != nil && t.Type == token.Ident {
		p.next()
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	return Func(ret, cc, params), p.done()
}

func (p *parser) lookup(name string, line int) (*Type, error) {
	if t, ok := Base(name); ok {
		return t, nil
	}
	if p.self != nil && name == p.self.Name {
		return Named(name, p.self), nil
	}
	if p.res != nil {
		if t, ok := p.res.Lookup(name); ok {
			return Named(name, t), nil
		}
	}
	return nil, fmt.Errorf("line %d: unknown type %q", line, name)
}

func (p *parser) parseTypeSpec() (*Type, error) {
	for t := p.peek(); t != nil && t.Type == token.Ident && qualifiers[t.Value]; t = p.peek() {
		p.next()
	}
	t, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch t.Value {
	case "struct", "union", "enum":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return p.lookup(name.Value, name.Line)
	case "signed", "unsigned":
		if n := p.peek(); n != nil && n.Type == token.Ident {
			combined := t.Value + " " + n.Value
			if n.Value == "long" {
				p.next()
				if n2 := p.peek(); n2 != nil && n2.Type == token.Ident && n2.Value == "long" {
					p.next()
					combined += " long"
				}
				return p.lookup(combined, t.Line)
			}
			if _, ok := baseSizes[combined]; ok {
				p.next()
				return p.lookup(combined, t.Line)
			}
		}
		return p.lookup(t.Value+" int", t.Line)
	case "long":
		if n := p.peek(); n != nil && n.Type == token.Ident && (n.Value == "long" || n.Value == "double") {
			p.next()
			return p.lookup("long "+n.Value, t.Line)
		}
	}
	return p.lookup(t.Value, t.Line)
}

func (p *parser) parsePointers(t *Type) *Type {
	for p.peekPunct("*") {
		p.next()
		t = Pointer(t, p.ptrSize)
		for n := p.peek(); n != nil && n.Type == token.Ident && qualifiers[n.Value]; n = p.peek() {
			p.next()
		}
	}
	return t
}

// parseDeclarator parses the declarator following a type specifier and
// returns the declared name, if any, and the full type. A parenthesised
// inner declarator binds looser than the suffixes after it, so
// "void (__cdecl *f[4])(int)" is an array of four function pointers and
// "_BYTE (*p)[4]" is a pointer to an array.
func (p *parser) parseDeclarator(base *Type) (string, *Type, error) {
	t := p.parsePointers(base)

	if !p.nestedDeclarator() {
		name := ""
		if n := p.peek(); n != nil && n.Type == token.Ident {
			name = n.Value
			p.next()
		}
		t, err := p.parseSuffixes(t, "")
		return name, t, err
	}

	p.next()
	cc := ""
	if n := p.peek(); n != nil && n.Type == token.Ident && callConvs[n.Value] {
		cc = n.Value
		p.next()
	}
	inner := p.pos
	closing, err := p.matchParen(inner)
	if err != nil {
		return "", nil, err
	}

	// suffixes apply to the base first, the inner declarator wraps the result
	p.pos = closing + 1
	outer, err := p.parseSuffixes(t, cc)
	if err != nil {
		return "", nil, err
	}
	after := p.pos

	p.pos = inner
	name, full, err := p.parseDeclarator(outer)
	if err != nil {
		return "", nil, err
	}
	if p.pos != closing {
		t := p.tokens[p.pos]
		return "", nil, fmt.Errorf("line %d: expected \")\", got %q", t.Line, t.Value)
	}
	p.pos = after
	return name, full, nil
}

// nestedDeclarator reports whether the next "(" opens an inner declarator
// rather than a parameter list.
func (p *parser) nestedDeclarator() bool {
	if !p.peekPunct("(") || p.pos+1 >= len(p.tokens) {
		return false
	}
	n := p.tokens[p.pos+1]
	return n.Is("*") || n.Is("(") || (n.Type == token.Ident && callConvs[n.Value])
}

// matchParen returns the index of the ")" closing a "(" whose contents
// start at from.
func (p *parser) matchParen(from int) (int, error) {
	depth := 1
	for i := from; i < len(p.tokens); i++ {
		switch {
		case p.tokens[i].Is("("):
			depth++
		case p.tokens[i].Is(")"):
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unexpected end of input, expected %q", ")")
}

// parseSuffixes applies array dimensions and parameter lists to t. The
// suffix nearest the name is the outermost type.
func (p *parser) parseSuffixes(t *Type, cc string) (*Type, error) {
	var wraps []func(*Type) *Type
	for {
		switch {
		case p.peekPunct("["):
			p.next()
			n := p.next()
			if n == nil || n.Type != token.Number {
				return nil, fmt.Errorf("expected array length")
			}
			v, err := strconv.ParseInt(n.Value, 0, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("line %d: invalid array length %q", n.Line, n.Value)
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			wraps = append(wraps, func(elem *Type) *Type { return Array(elem, int(v)) })

		case p.peekPunct("("):
			params, err := p.parseParams()
			if err != nil {
				return nil, err
			}
			wraps = append(wraps, func(ret *Type) *Type { return Func(ret, cc, params) })

		default:
			for i := len(wraps) - 1; i >= 0; i-- {
				t = wraps[i](t)
			}
			return t, nil
		}
	}
}

func (p *parser) parseParams() ([]Param, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if p.peekPunct(")") {
		p.next()
		return nil, nil
	}
	if n := p.peek(); n != nil && n.Type == token.Ident && n.Value == "void" &&
		p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Is(")") {
		p.pos += 2
		return nil, nil
	}
	var params []Param
	for {
		if n := p.peek(); n != nil && n.Type == token.Ident && n.Value == "..." {
			p.next()
			params = append(params, Param{})
		} else {
			base, err := p.parseTypeSpec()
			if err != nil {
				return nil, err
			}
			name, t, err := p.parseDeclarator(base)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Type: t, Name: name})
		}
		if p.peekPunct(",") {
			p.next()
			continue
		}
		return params, p.expectPunct(")")
	}
}
