// Package roots keeps native-referenced script objects alive across garbage
// collection.
//
// The engine only exposes script objects through its value stack, and offers
// no stable native handle the collector will not move or reclaim. This
// package maintains a single GC-rooted array per engine instance (the root
// table), stored under a well-known key in the engine's heap stash. Storing
// a duplicate reference into the table makes the object reachable from a GC
// root, and the slot index becomes the native side's durable handle.
//
// Slots are recycled through an intrusive free list embedded in the array
// itself: element 0 holds the head index (0 means empty), and each free slot
// stores the next free slot's index. Allocation and free are O(1) with no
// search; the array never shrinks. Freeing is LIFO, so the most recently
// freed slot is the next one allocated.
//
// The table deliberately does not deduplicate: marshaling the same script
// object twice yields two independent slots. Deduplicating would require an
// identity-keyed lookup paid on every marshal for a benefit of uncertain
// value.
//
// The table is created lazily on first use and lives for the lifetime of
// its engine instance; engine shutdown reclaims it.
package roots
