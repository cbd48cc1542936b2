// Package errors provides structured error types for the dukglue bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: the found and required kinds, the offending
// value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAccess, errors.KindTypeMismatch).
//		Got("string").
//		Want("number").
//		Detail("AsDouble called on a string value").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseAccess, "string", "number")
//	err := errors.MaskRejected("object", uint32(mask))
//
// All errors implement the standard error interface and support errors.Is/As.
// Contract violations are deliberately loud: typed accessors panic with an
// *Error rather than returning one, because calling the wrong accessor is a
// programming error, not a runtime condition.
package errors
