package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseMarshal Phase = "marshal" // stack to native value
	PhasePush    Phase = "push"    // native value to stack
	PhaseAccess  Phase = "access"  // typed accessor on a held value
	PhaseStash   Phase = "stash"   // root table slot management
	PhaseEngine  Phase = "engine"  // engine instance operations
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch    Kind = "type_mismatch"
	KindMaskRejected    Kind = "mask_rejected"
	KindContextMismatch Kind = "context_mismatch"
	KindBadSlot         Kind = "bad_slot"
	KindTrap            Kind = "trap"
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidInput    Kind = "invalid_input"
)

// Error is the structured error type used throughout the bridge.
// Contract violations (wrong accessor for the held kind, rejected type
// masks, cross-instance misuse) are reported as *Error values; accessors
// panic with one, marshaling returns one.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Got    string
	Want   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Got != "" || e.Want != "" {
		b.WriteString(": ")
		if e.Got != "" && e.Want != "" {
			b.WriteString("got ")
			b.WriteString(e.Got)
			b.WriteString(", want ")
			b.WriteString(e.Want)
		} else if e.Got != "" {
			b.WriteString("got ")
			b.WriteString(e.Got)
		} else {
			b.WriteString("want ")
			b.WriteString(e.Want)
		}
	}

	if e.Detail != "" {
		if e.Got != "" || e.Want != "" {
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

// Got sets the kind or type that was actually found
func (b *Builder) Got(s string) *Builder {
	b.err.Got = s
	return b
}

// Want sets the kind or type the operation required
func (b *Builder) Want(s string) *Builder {
	b.err.Want = s
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, got, want string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTypeMismatch,
		Got:   got,
		Want:  want,
	}
}

// MaskRejected creates an error for a stack value outside the accepted mask
func MaskRejected(got string, mask uint32) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindMaskRejected,
		Got:    got,
		Detail: fmt.Sprintf("type not in accepted mask %#x", mask),
	}
}

// ContextMismatch creates a cross-instance misuse error
func ContextMismatch(phase Phase, got, want uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContextMismatch,
		Detail: fmt.Sprintf("value belongs to engine instance %d, not %d", want, got),
	}
}

// BadSlot creates an error for an invalid root table slot
func BadSlot(slot uint32) *Error {
	return &Error{
		Phase:  PhaseStash,
		Kind:   KindBadSlot,
		Detail: fmt.Sprintf("slot %d is not an occupied root table entry", slot),
		Value:  slot,
	}
}

// Trap creates an error for a fault inside the guest engine
func Trap(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("call %s", fn),
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for a missing collaborator
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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
