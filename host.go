package structrecover

import (
	"fmt"

	"github.com/wippyai/structrecover/ctype"
)

// Address is a virtual address in the analysed program.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%08X", uint64(a))
}

// Memory answers questions about the analysed program's address space.
type Memory interface {
	PointerSize() int
	ReadPointer(addr Address) (Address, error)
	IsCode(addr Address) bool
	SegmentIsExecutable(addr Address) bool
	// CoerceToFunction tries to define a function at addr. It is best
	// effort and reports whether a function now starts there.
	CoerceToFunction(addr Address) bool
}

// Signatures provides decompiled function signatures.
type Signatures interface {
	SignatureOf(fn Address) (*ctype.Type, bool)
}

// Symbols provides names for addresses.
type Symbols interface {
	// ShortName returns the demangled name of addr, possibly with a
	// parameter list.
	ShortName(addr Address) string
	// SymbolName returns the raw, possibly mangled, symbol at addr.
	SymbolName(addr Address) string
}

// Rebinder retypes a local variable of a decompiled function.
type Rebinder interface {
	Rebind(fn Address, variable string, t *ctype.Type) error
}

// Confirmer shows a generated declaration to the user and returns the
// possibly edited text. ok is false when the user cancels.
type Confirmer interface {
	Confirm(decl string) (edited string, ok bool)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(decl string) (string, bool)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(decl string) (string, bool) {
	return f(decl)
}

// AcceptAll confirms every declaration unchanged.
var AcceptAll Confirmer = ConfirmFunc(func(decl string) (string, bool) {
	return decl, true
})

// RejectAll cancels every confirmation.
var RejectAll Confirmer = ConfirmFunc(func(string) (string, bool) {
	return "", false
})
