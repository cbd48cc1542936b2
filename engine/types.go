package engine

// Type identifies the kind of a script value, both on the engine's value
// stack and inside a native Value. Exactly one payload is meaningful per
// type.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject
	TypePointer
)

var typeNames = [...]string{
	TypeUndefined: "undefined",
	TypeNull:      "null",
	TypeBoolean:   "boolean",
	TypeNumber:    "number",
	TypeString:    "string",
	TypeObject:    "object",
	TypePointer:   "pointer",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// TypeMask is a bit set of Types used to restrict which stack values a
// marshaling operation accepts.
type TypeMask uint16

const (
	MaskUndefined TypeMask = 1 << TypeUndefined
	MaskNull      TypeMask = 1 << TypeNull
	MaskBoolean   TypeMask = 1 << TypeBoolean
	MaskNumber    TypeMask = 1 << TypeNumber
	MaskString    TypeMask = 1 << TypeString
	MaskObject    TypeMask = 1 << TypeObject
	MaskPointer   TypeMask = 1 << TypePointer

	MaskAny TypeMask = MaskUndefined | MaskNull | MaskBoolean | MaskNumber |
		MaskString | MaskObject | MaskPointer
)

// Mask returns the TypeMask bit for t.
func (t Type) Mask() TypeMask {
	return 1 << t
}

// Has reports whether t is in the mask.
func (m TypeMask) Has(t Type) bool {
	return m&t.Mask() != 0
}

// Context is the service contract the bridge requires from a script engine
// instance: a LIFO value stack with typed operations and a GC-rooted heap
// stash. Stack positions follow the engine convention: non-negative indices
// count from the stack bottom, negative indices from the top (-1 is the top
// value).
//
// A Context (and everything reachable through it) is single-threaded by
// contract. Only one native call stack may interact with an instance at a
// time; implementations do not lock.
type Context interface {
	// InstanceID identifies the engine instance. Values marshaled from one
	// instance are never interchangeable with another.
	InstanceID() uint64

	// Depth returns the number of values on the stack.
	Depth() int

	PushUndefined()
	PushNull()
	PushBoolean(v bool)
	PushNumber(v float64)
	// PushString pushes an owned copy of b; the engine does not retain b.
	PushString(b []byte)
	PushPointer(p uintptr)
	// PushArray pushes a fresh empty array object.
	PushArray()

	// Dup pushes a duplicate of the value at idx onto the top.
	Dup(idx int)
	// Remove drops the value at idx, shifting values above it down.
	Remove(idx int)
	// Pop removes the top n values.
	Pop(n int)

	// TypeAt returns the type of the value at idx.
	TypeAt(idx int) Type

	// Typed reads. Callers check TypeAt first; reading a mismatched
	// position is a caller error and implementations may trap.
	Boolean(idx int) bool
	Number(idx int) float64
	// StringBytes returns the bytes of the string at idx. The returned
	// slice is only valid until the engine next runs; callers copy.
	StringBytes(idx int) []byte
	Pointer(idx int) uintptr

	// Property access on the object at objIdx. Get pushes the property
	// value (undefined if absent, reported by the return value); Put pops
	// the top of the stack into the property.
	GetProp(objIdx int, key string) bool
	PutProp(objIdx int, key string)
	HasProp(objIdx int, key string) bool
	GetIndex(objIdx int, i uint32)
	PutIndex(objIdx int, i uint32)

	// Length returns the array length of the object at idx.
	Length(idx int) uint32

	// Equals applies the engine's native equality to the values at a and b.
	Equals(a, b int) bool

	// PushStash pushes the engine's heap stash: a persistent keyed object
	// that survives across calls and is itself a GC root.
	PushStash()
}
