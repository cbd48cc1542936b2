package roots

import (
	"testing"

	"github.com/ThomasKrenn/dukglue/engine"
	"github.com/ThomasKrenn/dukglue/memengine"
)

func TestLazyCreation(t *testing.T) {
	ctx := memengine.New()

	ctx.PushStash()
	if ctx.HasProp(-1, tableKey) {
		t.Fatal("root table should not exist before first use")
	}
	ctx.Pop(1)

	ctx.PushObject()
	Stash(ctx, -1)

	ctx.PushStash()
	if !ctx.HasProp(-1, tableKey) {
		t.Fatal("root table missing after first Stash")
	}
	// element 0 is the reserved free-list head
	ctx.GetProp(-1, tableKey)
	if ctx.TypeAt(-1) != engine.TypeObject {
		t.Fatal("root table is not an object")
	}
	ctx.GetIndex(-1, 0)
	if ctx.TypeAt(-1) != engine.TypeNumber {
		t.Fatal("slot 0 does not hold the free-list head")
	}
	ctx.Pop(3)
}

func TestStashLeavesStackUntouched(t *testing.T) {
	ctx := memengine.New()
	ctx.PushNumber(7)
	ctx.PushObject()

	depth := ctx.Depth()
	slot := Stash(ctx, -1)
	if ctx.Depth() != depth {
		t.Fatalf("Stash changed stack depth: %d -> %d", depth, ctx.Depth())
	}
	if ctx.TypeAt(-1) != engine.TypeObject {
		t.Fatal("stack top is no longer the stashed object")
	}
	if slot == 0 {
		t.Fatal("slot 0 handed out as a data slot")
	}
}

func TestGrowByAppend(t *testing.T) {
	ctx := memengine.New()

	for want := Slot(1); want <= 3; want++ {
		ctx.PushObject()
		if got := Stash(ctx, -1); got != want {
			t.Fatalf("slot = %d, want %d", got, want)
		}
		ctx.Pop(1)
	}
	if n := Len(ctx); n != 4 {
		t.Fatalf("table length = %d, want 4 (head + 3 slots)", n)
	}
}

func TestFreeListLIFO(t *testing.T) {
	ctx := memengine.New()

	for i := 0; i < 3; i++ {
		ctx.PushObject()
		Stash(ctx, -1)
		ctx.Pop(1)
	}

	Free(ctx, 2)
	Free(ctx, 1)

	if head := FreeHead(ctx); head != 1 {
		t.Fatalf("free head = %d, want 1 (most recently freed)", head)
	}

	// LIFO reuse before growing
	ctx.PushObject()
	if got := Stash(ctx, -1); got != 1 {
		t.Fatalf("reused slot = %d, want 1", got)
	}
	if got := Stash(ctx, -1); got != 2 {
		t.Fatalf("reused slot = %d, want 2", got)
	}

	// free list exhausted, back to appending
	if got := Stash(ctx, -1); got != 4 {
		t.Fatalf("appended slot = %d, want 4", got)
	}
	ctx.Pop(1)
}

func TestNegativeAndAbsoluteIndex(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	ctx.PushNumber(1)

	// the object sits below the top; address it both ways
	s1 := Stash(ctx, -2)
	s2 := Stash(ctx, 0)

	Push(ctx, s1)
	Push(ctx, s2)
	if !ctx.Equals(-1, -2) {
		t.Fatal("slots from the two index forms reference different objects")
	}
	ctx.Pop(2)
}

func TestPushDuplicatesRoot(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	slot := Stash(ctx, -1)
	ctx.Pop(1)

	// pushing twice must yield the same object both times: the root is
	// duplicated, never consumed
	Push(ctx, slot)
	Push(ctx, slot)
	if !ctx.Equals(-1, -2) {
		t.Fatal("pushed references are not the same object")
	}
	ctx.Pop(2)

	Push(ctx, slot)
	if ctx.TypeAt(-1) != engine.TypeObject {
		t.Fatal("root was consumed by earlier pushes")
	}
	ctx.Pop(1)
}

func TestStashSurvivesCollection(t *testing.T) {
	ctx := memengine.New()
	ctx.PushObject()
	slot := Stash(ctx, -1)
	ctx.Pop(1) // object now reachable only through the root table

	before := ctx.Live()
	ctx.Collect()
	if ctx.Live() != before {
		t.Fatal("rooted object was collected")
	}

	Push(ctx, slot)
	if ctx.TypeAt(-1) != engine.TypeObject {
		t.Fatal("rooted object gone after collection")
	}
	ctx.Pop(1)

	// freeing the slot drops the table's reference
	Free(ctx, slot)
	ctx.Collect()
	if ctx.Live() != before-1 {
		t.Fatalf("freed object not collected: live = %d, want %d", ctx.Live(), before-1)
	}
}
