// Package errors provides structured error types for the structrecover module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, type name, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegister, errors.KindRegistrationConflict).
//		TypeName("int").
//		Detail("name is a builtin type").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Collision([]int{2, 3})
//	err := errors.OutOfBounds(errors.PhasePack, nil, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// The ErrCollision, ErrCancelled and ErrRegistrationConflict sentinels match
// any error of the same Phase and Kind.
package errors
