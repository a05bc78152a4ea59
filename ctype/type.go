package ctype

import (
	"strconv"
	"strings"
)

// Kind classifies a Type.
type Kind int

const (
	KindVoid Kind = iota
	KindBase
	KindPointer
	KindArray
	KindStruct
	KindFunc
	KindNamed
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBase:
		return "base"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindFunc:
		return "func"
	case KindNamed:
		return "named"
	}
	return "unknown"
}

// baseSizes lists the builtin scalar types understood by the printer and
// parser. Multi-word names are stored with single spaces.
var baseSizes = map[string]int{
	"_BYTE":              1,
	"char":               1,
	"signed char":        1,
	"unsigned char":      1,
	"bool":               1,
	"_BOOL1":             1,
	"_WORD":              2,
	"short":              2,
	"unsigned short":     2,
	"_DWORD":             4,
	"int":                4,
	"signed int":         4,
	"unsigned int":       4,
	"float":              4,
	"_BOOL4":             4,
	"_QWORD":             8,
	"__int64":            8,
	"signed __int64":     8,
	"unsigned __int64":   8,
	"double":             8,
	"_OWORD":             16,
	"__int128":           16,
	"unsigned __int128":  16,
	"long double":        16,
	"__m128":             16,
	"unsigned __int8":    1,
	"unsigned __int16":   2,
	"unsigned __int32":   4,
	"__int8":             1,
	"__int16":            2,
	"__int32":            4,
	"signed __int32":     4,
	"signed __int16":     2,
	"signed __int8":      1,
	"long":               4,
	"unsigned long":      4,
	"long long":          8,
	"unsigned long long": 8,
}

// IsBuiltin reports whether name is a builtin scalar type or void.
func IsBuiltin(name string) bool {
	if name == "void" {
		return true
	}
	_, ok := baseSizes[name]
	return ok
}

// Type is a C-like type as understood by a decompiler's local type library.
type Type struct {
	Elem     *Type
	ref      *Type
	Name     string
	CallConv string
	Members  []Member
	Params   []Param
	Kind     Kind
	Len      int
	width    int
}

// Member is one member of a struct type. Offset is relative to the start
// of the struct.
type Member struct {
	Type   *Type
	Name   string
	Offset int
	Size   int
}

// Param is one function parameter. Name may be empty.
type Param struct {
	Type *Type
	Name string
}

// Void returns the void type.
func Void() *Type {
	return &Type{Kind: KindVoid, Name: "void"}
}

// Base returns the builtin scalar type called name.
func Base(name string) (*Type, bool) {
	if name == "void" {
		return Void(), true
	}
	size, ok := baseSizes[name]
	if !ok {
		return nil, false
	}
	return &Type{Kind: KindBase, Name: name, width: size}, true
}

// Byte returns the canonical one-byte type used for padding.
func Byte() *Type {
	return &Type{Kind: KindBase, Name: "_BYTE", width: 1}
}

// Pointer returns a pointer to elem that is width bytes wide.
func Pointer(elem *Type, width int) *Type {
	return &Type{Kind: KindPointer, Elem: elem, width: width}
}

// Array returns a fixed-length array of n elem values.
func Array(elem *Type, n int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Len: n}
}

// Struct returns a struct type with the given members. Members must
// already carry their offsets and sizes.
func Struct(name string, members []Member) *Type {
	return &Type{Kind: KindStruct, Name: name, Members: members}
}

// Func returns a function type.
func Func(ret *Type, callConv string, params []Param) *Type {
	return &Type{Kind: KindFunc, Elem: ret, CallConv: callConv, Params: params}
}

// Named returns a reference by name to target. The reference prints as the
// name and measures as the target.
func Named(name string, target *Type) *Type {
	return &Type{Kind: KindNamed, Name: name, ref: target}
}

// Resolved follows named references to the underlying type.
func (t *Type) Resolved() *Type {
	for t != nil && t.Kind == KindNamed {
		t = t.ref
	}
	return t
}

// Size returns the size of t in bytes.
func (t *Type) Size() int {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case KindBase, KindPointer:
		return t.width
	case KindArray:
		return t.Len * t.Elem.Size()
	case KindStruct:
		end := 0
		for _, m := range t.Members {
			if e := m.Offset + m.Size; e > end {
				end = e
			}
		}
		return end
	case KindNamed:
		return t.ref.Size()
	}
	return 0
}

// String returns the type label, e.g. "int", "_DWORD *", "char[4]".
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return strings.TrimSpace(t.declare(""))
}

// declare renders t declaring name, following C declarator rules.
func (t *Type) declare(name string) string {
	switch t.Kind {
	case KindPointer:
		if t.Elem.Kind == KindFunc {
			inner := "*" + name
			if t.Elem.CallConv != "" {
				inner = t.Elem.CallConv + " " + inner
			}
			return t.Elem.declareFunc("(" + inner + ")")
		}
		if t.Elem.Kind == KindArray {
			return t.Elem.declare("(*" + name + ")")
		}
		if t.Elem.Kind == KindPointer {
			return t.Elem.declare("*" + name)
		}
		label := t.Elem.declare("")
		if strings.HasSuffix(label, "*") {
			return label + "*" + name
		}
		return label + " *" + name
	case KindArray:
		return t.Elem.declare(name + "[" + strconv.Itoa(t.Len) + "]")
	case KindFunc:
		inner := name
		if t.CallConv != "" {
			inner = strings.TrimSpace(t.CallConv + " " + name)
		}
		return t.declareFunc(inner)
	}
	if name == "" {
		return t.Name
	}
	if strings.HasPrefix(name, "[") {
		return t.Name + name
	}
	return t.Name + " " + name
}

func (t *Type) declareFunc(name string) string {
	params := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Type == nil {
			params = append(params, "...")
			continue
		}
		params = append(params, strings.TrimSpace(p.Type.declare(p.Name)))
	}
	ret := t.Elem
	if ret == nil {
		ret = Void()
	}
	return ret.declare(name + "(" + strings.Join(params, ", ") + ")")
}

// Declaration prints the multi-line C declaration of a struct type under
// the given name. Non-struct types print as a typedef.
func (t *Type) Declaration(name string) string {
	if t.Kind != KindStruct {
		return "typedef " + t.declare(name) + ";"
	}
	var b strings.Builder
	b.WriteString("struct ")
	b.WriteString(name)
	b.WriteString("\n{\n")
	for _, m := range t.Members {
		b.WriteString("  ")
		b.WriteString(m.Type.declare(m.Name))
		b.WriteString(";\n")
	}
	b.WriteString("};")
	return b.String()
}
