package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseScan     Phase = "scan"     // replaying observations
	PhaseDetect   Phase = "detect"   // vtable detection
	PhasePack     Phase = "pack"     // layout packing
	PhaseRegister Phase = "register" // type registration
	PhaseConfirm  Phase = "confirm"  // declaration confirmation
	PhaseRebind   Phase = "rebind"   // variable retyping
	PhaseParse    Phase = "parse"    // declaration parsing
	PhaseLoad     Phase = "load"     // session/image loading
)

// Kind categorizes the error
type Kind string

const (
	KindCollision            Kind = "collision"
	KindRegistrationConflict Kind = "registration_conflict"
	KindCancelled            Kind = "cancelled"
	KindRebind               Kind = "rebind"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindOutOfBounds          Kind = "out_of_bounds"
	KindInvalidData          Kind = "invalid_data"
	KindUnsupported          Kind = "unsupported"
)

// Sentinels for errors.Is matching on Phase and Kind.
var (
	ErrCollision            = &Error{Phase: PhasePack, Kind: KindCollision}
	ErrCancelled            = &Error{Phase: PhaseConfirm, Kind: KindCancelled}
	ErrRegistrationConflict = &Error{Phase: PhaseRegister, Kind: KindRegistrationConflict}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	TypeName string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.TypeName != "" {
		b.WriteString(": type ")
		b.WriteString(e.TypeName)
	}

	if e.Detail != "" {
		if e.TypeName != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// TypeName sets the type name involved
func (b *Builder) TypeName(t string) *Builder {
	b.err.TypeName = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Collision creates an error for a pack attempted over overlapping fields.
// rows holds the indices of the colliding rows.
func Collision(rows []int) *Error {
	return &Error{
		Phase:  PhasePack,
		Kind:   KindCollision,
		Detail: fmt.Sprintf("%d colliding field(s) at rows %v", len(rows), rows),
		Value:  rows,
	}
}

// RegistrationConflict creates an error for a type the registry rejects
func RegistrationConflict(name, detail string) *Error {
	return &Error{
		Phase:    PhaseRegister,
		Kind:     KindRegistrationConflict,
		TypeName: name,
		Detail:   detail,
	}
}

// Cancelled creates an error for a declined confirmation
func Cancelled(what string) *Error {
	return &Error{
		Phase:  PhaseConfirm,
		Kind:   KindCancelled,
		Detail: what + " cancelled by user",
	}
}

// RebindFailed creates an error for a variable that could not be retyped
func RebindFailed(function, variable string, cause error) *Error {
	return &Error{
		Phase:  PhaseRebind,
		Kind:   KindRebind,
		Path:   []string{function, variable},
		Detail: "apply type",
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a session loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
