package layout

import (
	"fmt"
	"strings"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
)

// Field is a candidate member of the structure under construction. It
// occupies [Offset, Offset+Size) relative to the base the variables were
// scanned from. The set of implementations is closed: *ScalarField and
// *VirtualTable.
type Field interface {
	Offset() int
	Size() int
	TypeName() string
	Name() string
	Enabled() bool
	IsArray() bool
	IsVirtualTable() bool
	// Origin is the offset of the base the originating variable pointed to.
	Origin() int
	// Binding is the variable the field was observed through, or nil.
	Binding() *VariableBinding

	member(origin, count int) ctype.Member
	setEnabled(enabled bool)
	setArray(array bool)
}

// Less orders fields by offset, then by type name.
func Less(a, b Field) bool {
	if a.Offset() != b.Offset() {
		return a.Offset() < b.Offset()
	}
	return a.TypeName() < b.TypeName()
}

// Equal reports whether a and b describe the same candidate: same offset
// and same type name. Size and enabled state are ignored.
func Equal(a, b Field) bool {
	return a.Offset() == b.Offset() && a.TypeName() == b.TypeName()
}

// VariableBinding identifies a local variable of a decompiled function.
// It is comparable and used as a set key.
type VariableBinding struct {
	Variable string
	Function structrecover.Address
}

func (b VariableBinding) String() string {
	return fmt.Sprintf("%s@%s", b.Variable, b.Function)
}

type fieldState struct {
	binding *VariableBinding
	offset  int
	origin  int
	enabled bool
	array   bool
}

func newFieldState(offset int, binding *VariableBinding, origin int) fieldState {
	return fieldState{
		offset:  offset + origin,
		origin:  origin,
		binding: binding,
		enabled: true,
	}
}

func (s *fieldState) Offset() int { return s.offset }
func (s *fieldState) Origin() int { return s.origin }
func (s *fieldState) Enabled() bool { return s.enabled }
func (s *fieldState) IsArray() bool { return s.array }
func (s *fieldState) Binding() *VariableBinding { return s.binding }
func (s *fieldState) setEnabled(enabled bool) { s.enabled = enabled }

// ScalarField is a single recovered typed field. It may be widened into an
// array whose length is inferred from the next enabled field.
type ScalarField struct {
	typ  *ctype.Type
	name string
	fieldState
}

// NewScalarField creates a field of type t at offset relative to origin.
// binding may be nil for synthesized fields.
func NewScalarField(offset int, t *ctype.Type, binding *VariableBinding, origin int) *ScalarField {
	return &ScalarField{
		fieldState: newFieldState(offset, binding, origin),
		typ:        t,
	}
}

// Type returns the declared type.
func (f *ScalarField) Type() *ctype.Type { return f.typ }

func (f *ScalarField) Size() int { return f.typ.Size() }
func (f *ScalarField) TypeName() string { return f.typ.String() }
func (f *ScalarField) IsVirtualTable() bool { return false }
func (f *ScalarField) setArray(array bool) { f.array = array }

// Name returns the field name, field_<HEX offset> unless renamed.
func (f *ScalarField) Name() string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("field_%X", f.offset)
}

// Rename overrides the generated name. An empty name restores it.
func (f *ScalarField) Rename(name string) {
	f.name = name
}

func (f *ScalarField) member(origin, count int) ctype.Member {
	rel := f.offset - origin
	name := f.name
	if name == "" {
		name = fmt.Sprintf("field_%X", rel)
	}
	t := f.typ
	if count > 0 {
		t = ctype.Array(f.typ, count)
	}
	return ctype.Member{
		Name:   name,
		Type:   t,
		Offset: rel,
		Size:   t.Size(),
	}
}

func paddingMember(offset, size int) ctype.Member {
	t := ctype.Byte()
	if size > 1 {
		t = ctype.Array(t, size)
	}
	return ctype.Member{
		Name:   fmt.Sprintf("gap_%X", offset),
		Type:   t,
		Offset: offset,
		Size:   size,
	}
}

// identifier turns a symbol name into something usable as a C identifier.
func identifier(name string) string {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.NewReplacer("`", "", "'", "", " ", "_").Replace(name)
	var b strings.Builder
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			b.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
