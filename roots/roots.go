package roots

import (
	"go.uber.org/zap"

	"github.com/ThomasKrenn/dukglue/engine"
)

// tableKey is the well-known heap stash key holding the root table.
const tableKey = "dukglue_dukvalue_refs"

// Slot is an index into the root table. Slot 0 is reserved for the
// free-list head and is never a valid data slot.
type Slot uint32

// pushTable pushes the root table onto the stack, creating it on first use.
// The table is re-pushed for every operation; no stack position is cached
// across engine calls, so script running between native calls cannot
// invalidate an in-progress slot read.
func pushTable(c engine.Context) {
	c.PushStash()

	if !c.HasProp(-1, tableKey) {
		c.PushArray()

		// table[0] = 0: empty free list
		c.PushNumber(0)
		c.PutIndex(-2, 0)

		c.PutProp(-2, tableKey)
		Logger().Debug("root table created", zap.Uint64("instance", c.InstanceID()))
	}

	c.GetProp(-1, tableKey)
	c.Remove(-2) // pop heap stash
}

// Stash duplicates the value at idx into a root table slot and returns the
// slot index. The stack entry at idx is left untouched. Allocation is O(1):
// the free-list head is reused when available, otherwise the table grows by
// one.
func Stash(c engine.Context, idx int) Slot {
	pushTable(c)

	// pushing the table shifted any index relative to the top
	if idx < 0 {
		idx--
	}

	// free slots form a linked list chained from table[0]; each free slot
	// stores the next free slot's index
	c.GetIndex(-1, 0)
	nextFree := uint32(c.Number(-1))
	c.Pop(1)

	if nextFree == 0 {
		// free list empty, grow by appending at the current length
		nextFree = c.Length(-1)
	} else {
		// unlink: table[0] = table[nextFree]
		c.GetIndex(-1, nextFree)
		c.PutIndex(-2, 0)
	}

	c.Dup(idx)
	c.PutIndex(-2, nextFree)
	c.Pop(1) // pop root table

	debugf("stashed ref: instance=%d slot=%d", c.InstanceID(), nextFree)
	return Slot(nextFree)
}

// Free returns slot to the free list, dropping the table's reference to the
// stored object so it becomes collectible. The freed slot becomes the new
// free-list head, so it is the next slot Stash hands out.
func Free(c engine.Context, slot Slot) {
	pushTable(c)

	// table[slot] = table[0]: freed slot points at the previous head and
	// implicitly gives up its reference
	c.GetIndex(-1, 0)
	c.PutIndex(-2, uint32(slot))

	// table[0] = slot
	c.PushNumber(float64(slot))
	c.PutIndex(-2, 0)

	c.Pop(1) // pop root table

	debugf("freed ref: instance=%d slot=%d", c.InstanceID(), slot)
}

// Push duplicates the reference stored in slot onto the stack top. The
// table's own copy is untouched; pushing never consumes the root.
func Push(c engine.Context, slot Slot) {
	pushTable(c)
	c.GetIndex(-1, uint32(slot))
	c.Remove(-2) // pop root table
}

// Len returns the root table's array length, including the reserved slot 0.
// Intended for diagnostics; the table never shrinks.
func Len(c engine.Context) uint32 {
	pushTable(c)
	n := c.Length(-1)
	c.Pop(1)
	return n
}

// FreeHead returns the current free-list head, 0 when the list is empty.
// Intended for diagnostics.
func FreeHead(c engine.Context) Slot {
	pushTable(c)
	c.GetIndex(-1, 0)
	head := Slot(c.Number(-1))
	c.Pop(2)
	return head
}
