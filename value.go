package dukglue

import (
	"bytes"
	"fmt"

	"github.com/ThomasKrenn/dukglue/engine"
	"github.com/ThomasKrenn/dukglue/errors"
	"github.com/ThomasKrenn/dukglue/roots"
)

// Value is a variant holding one script-engine value on the native side:
// undefined, null, a boolean, a number, an owned string copy, an opaque
// pointer, or a reference to a script object kept alive through a root
// table slot.
//
// Object-kind values use shared-ownership reference counting. The counter
// is allocated lazily on the first Copy, so the common case of a single
// owner never allocates; until then the value owns its slot exclusively.
// The zero Value is Undefined, belongs to no engine instance, and owns
// nothing.
type Value struct {
	ctx  engine.Context
	kind engine.Type

	b    bool
	n    float64
	p    uintptr
	s    []byte     // owned copy, kind == String only
	slot roots.Slot // kind == Object only

	// refs is nil until the value is copied. Once shared it counts every
	// live copy of the same slot, including this one.
	refs *int32
}

// Undefined returns an undefined value bound to c.
func Undefined(c engine.Context) *Value {
	return &Value{ctx: c, kind: engine.TypeUndefined}
}

// Null returns a null value bound to c.
func Null(c engine.Context) *Value {
	return &Value{ctx: c, kind: engine.TypeNull}
}

// Boolean returns a boolean value bound to c.
func Boolean(c engine.Context, v bool) *Value {
	return &Value{ctx: c, kind: engine.TypeBoolean, b: v}
}

// Number returns a number value bound to c.
func Number(c engine.Context, v float64) *Value {
	return &Value{ctx: c, kind: engine.TypeNumber, n: v}
}

// String returns a string value bound to c, holding its own copy of b.
func String(c engine.Context, b []byte) *Value {
	return &Value{ctx: c, kind: engine.TypeString, s: bytes.Clone(b)}
}

// Pointer returns an opaque pointer value bound to c.
func Pointer(c engine.Context, p uintptr) *Value {
	return &Value{ctx: c, kind: engine.TypePointer, p: p}
}

// CopyFromStack copies the value at idx on c's stack into a new Value,
// leaving the stack untouched. If the stack value's type is not in mask,
// the marshal is rejected with a structured error; that is a caller
// contract violation, not a runtime condition to retry.
//
// Objects are registered in the root table and referenced by slot; the
// original stack entry remains independently usable. Strings are copied
// into an owned buffer, since the engine's string memory is not stable.
func CopyFromStack(c engine.Context, idx int, mask engine.TypeMask) (*Value, error) {
	t := c.TypeAt(idx)
	if !mask.Has(t) {
		return nil, errors.MaskRejected(t.String(), uint32(mask))
	}

	v := &Value{ctx: c, kind: t}
	switch t {
	case engine.TypeUndefined, engine.TypeNull:
		// no payload; null reads back as a zero pointer
	case engine.TypeBoolean:
		v.b = c.Boolean(idx)
	case engine.TypeNumber:
		v.n = c.Number(idx)
	case engine.TypeString:
		v.s = bytes.Clone(c.StringBytes(idx))
	case engine.TypeObject:
		v.slot = roots.Stash(c, idx)
	case engine.TypePointer:
		v.p = c.Pointer(idx)
	}
	return v, nil
}

// TakeFromStack is CopyFromStack followed by removing the stack entry at
// idx. The net stack depth decreases by one and ownership transfers fully
// into the returned value.
func TakeFromStack(c engine.Context, idx int, mask engine.TypeMask) (*Value, error) {
	v, err := CopyFromStack(c, idx, mask)
	if err != nil {
		return nil, err
	}
	c.Remove(idx)
	return v, nil
}

// Push writes the held value onto the top of its engine's stack. For an
// object, the rooted reference is duplicated onto the stack; the root
// table's own copy is untouched, so pushing never consumes the root.
func (v *Value) Push() {
	c := v.ctx
	if c == nil {
		panic(errors.NotInitialized(errors.PhasePush, "value context"))
	}

	switch v.kind {
	case engine.TypeUndefined:
		c.PushUndefined()
	case engine.TypeNull:
		c.PushNull()
	case engine.TypeBoolean:
		c.PushBoolean(v.b)
	case engine.TypeNumber:
		c.PushNumber(v.n)
	case engine.TypeString:
		c.PushString(v.s)
	case engine.TypeObject:
		roots.Push(c, v.slot)
	case engine.TypePointer:
		c.PushPointer(v.p)
	}
}

// PushTo is Push with an explicit target instance. Pushing against any
// instance other than the one the value was marshaled from is rejected:
// slots and references are meaningless across instances.
func (v *Value) PushTo(c engine.Context) error {
	if v.ctx == nil {
		return errors.NotInitialized(errors.PhasePush, "value context")
	}
	if c.InstanceID() != v.ctx.InstanceID() {
		return errors.ContextMismatch(errors.PhasePush, c.InstanceID(), v.ctx.InstanceID())
	}
	v.Push()
	return nil
}

// CopyFrom makes dst a shared copy of src, releasing whatever dst held
// before. For object values the two copies reference the same root table
// slot: no new slot is allocated, the share counter is created on the
// first copy (initialized to 2, one for each side) and incremented on
// every later one.
func (dst *Value) CopyFrom(src *Value) {
	if dst == src {
		return
	}
	dst.Release()

	dst.ctx = src.ctx
	dst.kind = src.kind
	dst.b = src.b
	dst.n = src.n
	dst.p = src.p
	dst.s = nil
	dst.slot = 0
	dst.refs = nil

	switch src.kind {
	case engine.TypeString:
		dst.s = bytes.Clone(src.s)
	case engine.TypeObject:
		dst.slot = src.slot
		if src.refs == nil {
			// first copy ever: lazily upgrade the exclusive owner into a
			// shared one
			n := int32(2)
			src.refs = &n
			dst.refs = &n
		} else {
			*src.refs++
			dst.refs = src.refs
		}
	}
}

// Copy returns a new shared copy of v.
func (v *Value) Copy() *Value {
	dst := &Value{}
	dst.CopyFrom(v)
	return dst
}

// Move transfers v's kind, payload, slot, and share state into a new value
// and leaves v Undefined. Moving never touches the root table and never
// creates a share counter; releasing the moved-from value afterward is a
// no-op.
func (v *Value) Move() *Value {
	moved := &Value{
		ctx:  v.ctx,
		kind: v.kind,
		b:    v.b,
		n:    v.n,
		p:    v.p,
		s:    v.s,
		slot: v.slot,
		refs: v.refs,
	}
	v.kind = engine.TypeUndefined
	v.s = nil
	v.refs = nil
	return moved
}

// Release gives up the value's ownership. Only object values hold a
// resource: with no share counter this value owns its slot exclusively and
// frees it; with a counter above 1 another copy still owns the slot and
// the counter is decremented; at exactly 1 this is the last owner and the
// slot is freed. Afterward the value is Undefined, so releasing twice is a
// no-op.
func (v *Value) Release() {
	if v.kind != engine.TypeObject {
		v.kind = engine.TypeUndefined
		v.s = nil
		return
	}

	if v.refs != nil {
		if *v.refs > 1 {
			*v.refs--
		} else {
			roots.Free(v.ctx, v.slot)
		}
		v.refs = nil
	} else {
		roots.Free(v.ctx, v.slot)
	}

	v.kind = engine.TypeUndefined
}

// Equal reports whether v and o hold equal values. Values of different
// kinds, or from different engine instances, are never equal. Scalars
// compare by payload and strings byte-for-byte; object comparison is
// delegated to the engine by pushing both operands and applying its native
// equality primitive.
func (v *Value) Equal(o *Value) bool {
	if v.kind != o.kind || v.ctx != o.ctx {
		return false
	}

	switch v.kind {
	case engine.TypeUndefined, engine.TypeNull:
		return true
	case engine.TypeBoolean:
		return v.b == o.b
	case engine.TypeNumber:
		return v.n == o.n
	case engine.TypeString:
		return bytes.Equal(v.s, o.s)
	case engine.TypeObject:
		v.Push()
		o.Push()
		eq := v.ctx.Equals(-1, -2)
		v.ctx.Pop(2)
		return eq
	case engine.TypePointer:
		return v.p == o.p
	}
	return false
}

// Kind returns the value's type tag.
func (v *Value) Kind() engine.Type { return v.kind }

// Context returns the engine instance this value belongs to.
func (v *Value) Context() engine.Context { return v.ctx }

func (v *Value) requireKind(want engine.Type) {
	if v.kind != want {
		panic(errors.TypeMismatch(errors.PhaseAccess, v.kind.String(), want.String()))
	}
}

// AsDouble returns the number payload. Calling it on any other kind is a
// contract violation and panics with a structured error.
func (v *Value) AsDouble() float64 {
	v.requireKind(engine.TypeNumber)
	return v.n
}

// AsFloat32 returns the number payload narrowed to float32.
func (v *Value) AsFloat32() float32 {
	v.requireKind(engine.TypeNumber)
	return float32(v.n)
}

// AsInt returns the number truncated toward zero and wrapped modulo 2^32,
// reinterpreted as signed. Negative and out-of-range numbers wrap rather
// than saturate; this matches the engine's own integer coercion and is
// kept as-is, surprising as it looks.
func (v *Value) AsInt() int32 {
	v.requireKind(engine.TypeNumber)
	return int32(uint32(int64(v.n)))
}

// AsUint returns the number truncated toward zero and wrapped modulo 2^32.
func (v *Value) AsUint() uint32 {
	v.requireKind(engine.TypeNumber)
	return uint32(int64(v.n))
}

// AsPointer returns the opaque pointer payload. Null values read back as a
// zero pointer; any other kind panics.
func (v *Value) AsPointer() uintptr {
	if v.kind != engine.TypePointer && v.kind != engine.TypeNull {
		panic(errors.TypeMismatch(errors.PhaseAccess, v.kind.String(), "pointer or null"))
	}
	return v.p
}

// AsString returns the string payload.
func (v *Value) AsString() string {
	v.requireKind(engine.TypeString)
	return string(v.s)
}

// AsBytes returns a copy of the string payload's bytes. The internal buffer
// stays owned by the value.
func (v *Value) AsBytes() []byte {
	v.requireKind(engine.TypeString)
	return bytes.Clone(v.s)
}

// String renders a diagnostic description of the value. It never touches
// the engine.
func (v *Value) String() string {
	switch v.kind {
	case engine.TypeUndefined, engine.TypeNull:
		return v.kind.String()
	case engine.TypeBoolean:
		return fmt.Sprintf("boolean(%t)", v.b)
	case engine.TypeNumber:
		return fmt.Sprintf("number(%g)", v.n)
	case engine.TypeString:
		return fmt.Sprintf("string(%q)", v.s)
	case engine.TypeObject:
		return fmt.Sprintf("object(slot %d)", v.slot)
	case engine.TypePointer:
		return fmt.Sprintf("pointer(%#x)", v.p)
	}
	return "unknown"
}
