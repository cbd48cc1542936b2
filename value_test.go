package dukglue

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/ThomasKrenn/dukglue/engine"
	"github.com/ThomasKrenn/dukglue/errors"
	"github.com/ThomasKrenn/dukglue/memengine"
)

func TestScalarRoundTrip(t *testing.T) {
	ctx := memengine.New()

	values := []*Value{
		Undefined(ctx),
		Null(ctx),
		Boolean(ctx, true),
		Boolean(ctx, false),
		Number(ctx, 0),
		Number(ctx, -1.5),
		Number(ctx, math.MaxFloat64),
		String(ctx, nil),
		String(ctx, []byte("hello")),
		String(ctx, []byte{0x00, 0xff, 0x80}),
		Pointer(ctx, 0xdeadbeef),
	}

	for _, orig := range values {
		orig.Push()
		got, err := CopyFromStack(ctx, -1, engine.MaskAny)
		if err != nil {
			t.Fatalf("%s: CopyFromStack: %v", orig, err)
		}
		if !orig.Equal(got) {
			t.Errorf("round trip changed value: pushed %s, read back %s", orig, got)
		}
		ctx.Pop(1)
	}
	if ctx.Depth() != 0 {
		t.Fatalf("stack not balanced after round trips: depth %d", ctx.Depth())
	}
}

func TestUndefinedDefault(t *testing.T) {
	ctx := memengine.New()

	var zero Value
	if zero.Kind() != engine.TypeUndefined {
		t.Fatal("zero Value is not undefined")
	}
	zero.Release() // must be a no-op
	zero.Release()

	v := Undefined(ctx)
	v.Push()
	if ctx.TypeAt(-1) != engine.TypeUndefined {
		t.Fatal("pushing an undefined value did not produce engine undefined")
	}
	ctx.Pop(1)
	v.Release()
	v.Release() // double release is a no-op
}

func TestTakeFromStackRemoves(t *testing.T) {
	ctx := memengine.New()
	ctx.PushNumber(1)
	ctx.PushString([]byte("middle"))
	ctx.PushNumber(3)

	v, err := TakeFromStack(ctx, -2, engine.MaskString)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	if v.AsString() != "middle" {
		t.Fatalf("took %s, want the middle string", v)
	}
	if ctx.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", ctx.Depth())
	}
	if ctx.Number(-1) != 3 || ctx.Number(-2) != 1 {
		t.Fatal("surrounding stack entries disturbed")
	}
}

func TestMaskRejection(t *testing.T) {
	ctx := memengine.New()
	ctx.PushString([]byte("nope"))

	_, err := CopyFromStack(ctx, -1, engine.MaskNumber|engine.MaskBoolean)
	if err == nil {
		t.Fatal("mask rejection did not error")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindMaskRejected}) {
		t.Fatalf("wrong error: %v", err)
	}

	// a rejected take must not remove anything
	_, err = TakeFromStack(ctx, -1, engine.MaskNumber)
	if err == nil {
		t.Fatal("rejected take did not error")
	}
	if ctx.Depth() != 1 {
		t.Fatalf("rejected take changed depth to %d", ctx.Depth())
	}
}

func TestObjectIdentitySurvivesRooting(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	ctx.Dup(-1) // keep an independent reference on the stack

	v, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	defer v.Release()

	// marshal a second value from the still-stacked reference
	w, err := CopyFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("CopyFromStack: %v", err)
	}
	defer w.Release()

	if v.slot == w.slot {
		t.Fatal("independent marshals must not share a slot")
	}
	if !v.Equal(w) {
		t.Fatal("rooted references to the same object compare unequal")
	}
	ctx.Pop(1)
}

func TestSharedOwnership(t *testing.T) {
	// only the count of surviving copies matters, not destruction order
	orders := [][3]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, order := range orders {
		ctx := memengine.New()
		ctx.PushObject()

		a, err := TakeFromStack(ctx, -1, engine.MaskObject)
		if err != nil {
			t.Fatalf("TakeFromStack: %v", err)
		}
		b := a.Copy()
		c := b.Copy()

		if a.refs == nil || *a.refs != 3 {
			t.Fatalf("share count after two copies = %v, want 3", a.refs)
		}
		if a.slot != b.slot || b.slot != c.slot {
			t.Fatal("copies do not share one slot")
		}

		vals := [3]*Value{a, b, c}
		live := ctx.Live()

		// releasing all but one copy must keep the root
		for _, i := range order[:2] {
			vals[i].Release()
			ctx.Collect()
			if ctx.Live() != live {
				t.Fatalf("order %v: root released while a copy was still alive", order)
			}
		}

		// the last owner releases the slot
		vals[order[2]].Release()
		ctx.Collect()
		if ctx.Live() != live-1 {
			t.Fatalf("order %v: last release did not free the root", order)
		}
	}
}

func TestCopyReleasesDestination(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	dst, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}

	live := ctx.Live()

	src := Number(ctx, 5)
	dst.CopyFrom(src)

	// overwriting dst released its exclusively-owned slot
	ctx.Collect()
	if ctx.Live() != live-1 {
		t.Fatal("copy-assignment leaked the destination's root")
	}
	if dst.AsDouble() != 5 {
		t.Fatalf("destination did not take the source payload: %s", dst)
	}
}

func TestMoveDoesNotAllocateOrRoot(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	v, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	slot := v.slot

	m := v.Move()
	if m.slot != slot {
		t.Fatalf("move changed slot: %d -> %d", slot, m.slot)
	}
	if m.refs != nil {
		t.Fatal("move created a share counter")
	}
	if v.Kind() != engine.TypeUndefined {
		t.Fatal("moved-from value is not undefined")
	}

	// releasing the husk must not free the slot the moved value owns
	live := ctx.Live()
	v.Release()
	ctx.Collect()
	if ctx.Live() != live {
		t.Fatal("releasing the moved-from value freed the slot")
	}

	m.Release()
	ctx.Collect()
	if ctx.Live() != live-1 {
		t.Fatal("releasing the moved value did not free the slot")
	}
}

func TestSlotReuseAfterRelease(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()

	v, err := CopyFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("CopyFromStack: %v", err)
	}
	slot := v.slot
	v.Release()

	// the most recently freed slot is the next one allocated
	w, err := CopyFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("CopyFromStack: %v", err)
	}
	defer w.Release()
	if w.slot != slot {
		t.Fatalf("slot %d not reused, got %d", slot, w.slot)
	}
	ctx.Pop(1)
}

func TestEquality(t *testing.T) {
	ctx := memengine.New()

	tests := []struct {
		name string
		a, b *Value
		want bool
	}{
		{"undefined", Undefined(ctx), Undefined(ctx), true},
		{"null", Null(ctx), Null(ctx), true},
		{"null vs undefined", Null(ctx), Undefined(ctx), false},
		{"booleans equal", Boolean(ctx, true), Boolean(ctx, true), true},
		{"booleans differ", Boolean(ctx, true), Boolean(ctx, false), false},
		{"numbers equal", Number(ctx, 1.25), Number(ctx, 1.25), true},
		{"numbers differ", Number(ctx, 1), Number(ctx, 2), false},
		{"nan never equal", Number(ctx, math.NaN()), Number(ctx, math.NaN()), false},
		{"strings equal", String(ctx, []byte("a\x00b")), String(ctx, []byte("a\x00b")), true},
		{"strings differ", String(ctx, []byte("a")), String(ctx, []byte("b")), false},
		{"pointers equal", Pointer(ctx, 8), Pointer(ctx, 8), true},
		{"pointers differ", Pointer(ctx, 8), Pointer(ctx, 16), false},
		{"kind mismatch", Number(ctx, 1), String(ctx, []byte("1")), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s: Equal = %t, want %t", tt.name, got, tt.want)
		}
	}
}

func TestObjectEqualityDelegated(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	ctx.PushObject()

	other, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	defer other.Release()
	same, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	defer same.Release()

	copied := same.Copy()
	defer copied.Release()

	depth := ctx.Depth()
	if !same.Equal(copied) {
		t.Error("copies of one object compare unequal")
	}
	if same.Equal(other) {
		t.Error("distinct objects compare equal")
	}
	if ctx.Depth() != depth {
		t.Fatal("object comparison leaked stack entries")
	}
}

func TestCrossInstance(t *testing.T) {
	ctx1 := memengine.New()
	ctx2 := memengine.New()

	if Number(ctx1, 1).Equal(Number(ctx2, 1)) {
		t.Error("values from different instances compare equal")
	}

	v := Number(ctx1, 1)
	err := v.PushTo(ctx2)
	if err == nil {
		t.Fatal("PushTo accepted a foreign instance")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhasePush, Kind: errors.KindContextMismatch}) {
		t.Fatalf("wrong error: %v", err)
	}

	if err := v.PushTo(ctx1); err != nil {
		t.Fatalf("PushTo own instance: %v", err)
	}
	if ctx1.Number(-1) != 1 {
		t.Fatal("PushTo own instance pushed the wrong value")
	}
}

func TestAccessorKindMismatch(t *testing.T) {
	ctx := memengine.New()
	s := String(ctx, []byte("1.5"))

	assertPanics := func(name string, fn func()) {
		t.Helper()
		defer func() {
			r := recover()
			if r == nil {
				t.Errorf("%s on mismatched kind did not panic", name)
				return
			}
			err, ok := r.(*errors.Error)
			if !ok || err.Kind != errors.KindTypeMismatch {
				t.Errorf("%s panicked with %v, want type_mismatch error", name, r)
			}
		}()
		fn()
	}

	assertPanics("AsDouble", func() { s.AsDouble() })
	assertPanics("AsFloat32", func() { s.AsFloat32() })
	assertPanics("AsInt", func() { s.AsInt() })
	assertPanics("AsUint", func() { s.AsUint() })
	assertPanics("AsPointer", func() { s.AsPointer() })
	assertPanics("AsString", func() { Number(ctx, 1).AsString() })
	assertPanics("AsBytes", func() { Null(ctx).AsBytes() })
}

func TestNumericNarrowing(t *testing.T) {
	ctx := memengine.New()

	tests := []struct {
		in   float64
		want int32
	}{
		{1.9, 1},        // truncates toward zero
		{-1.9, -1},      // truncates toward zero
		{-1, -1},        // wraps through 2^32
		{4294967297, 1}, // wraps modulo 2^32
	}
	for _, tt := range tests {
		if got := Number(ctx, tt.in).AsInt(); got != tt.want {
			t.Errorf("AsInt(%g) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if got := Number(ctx, -1).AsUint(); got != 4294967295 {
		t.Errorf("AsUint(-1) = %d, want 4294967295", got)
	}
	if got := Number(ctx, 2.5).AsFloat32(); got != 2.5 {
		t.Errorf("AsFloat32(2.5) = %g", got)
	}
}

func TestPointerAcceptsNull(t *testing.T) {
	ctx := memengine.New()
	if got := Null(ctx).AsPointer(); got != 0 {
		t.Fatalf("AsPointer on null = %#x, want 0", got)
	}
}

func TestStringOwnership(t *testing.T) {
	ctx := memengine.New()
	buf := []byte("mutable")
	v := String(ctx, buf)
	buf[0] = 'X'

	if v.AsString() != "mutable" {
		t.Fatal("value aliases the caller's buffer")
	}

	out := v.AsBytes()
	out[0] = 'Y'
	if v.AsString() != "mutable" {
		t.Fatal("AsBytes exposed the internal buffer")
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := memengine.New()

	// engine holds {x: 1} at the stack top
	ctx.PushObject()
	ctx.PushNumber(1)
	ctx.PutProp(-2, "x")

	v, err := TakeFromStack(ctx, -1, engine.MaskObject)
	if err != nil {
		t.Fatalf("TakeFromStack: %v", err)
	}
	if ctx.Depth() != 0 {
		t.Fatal("take left the object on the stack")
	}
	if v.refs != nil {
		t.Fatal("fresh value already has a share counter")
	}

	w := v.Copy()
	if v.refs == nil || *v.refs != 2 || w.refs != v.refs {
		t.Fatal("copy did not establish a shared counter of 2")
	}

	w.Push()
	if !ctx.GetProp(-1, "x") {
		t.Fatal("pushed object lost its property")
	}
	if got := ctx.Number(-1); got != 1 {
		t.Fatalf("x = %g, want 1", got)
	}
	ctx.Pop(2)

	live := ctx.Live()
	v.Release()
	if *w.refs != 1 {
		t.Fatalf("share count after first release = %d, want 1", *w.refs)
	}
	ctx.Collect()
	if ctx.Live() != live {
		t.Fatal("slot released while a copy was alive")
	}

	w.Release()
	ctx.Collect()
	if ctx.Live() != live-1 {
		t.Fatal("last release did not free the slot")
	}
}
