// Package engine defines the service contract the bridge requires from a
// script engine instance, and a wazero-backed implementation of it for
// Duktape interpreters compiled to WebAssembly.
//
// The contract (Context) is deliberately narrow: a LIFO value stack with
// typed push/read operations, duplicate/remove by position, an equality
// primitive over two stacked values, and a persistent GC-rooted heap stash.
// Everything else about the engine (compilation, execution, collection) is
// the engine's own business.
//
// # Stack discipline
//
// Indices follow the Duktape convention: non-negative indices count from
// the stack bottom, negative indices from the top (-1 addresses the top
// value). Every Context operation is synchronous and leaves the stack in a
// documented state; nothing in this package blocks or schedules.
//
// # Threading
//
// A Context is single-threaded by contract. Only one native call stack may
// interact with a given instance (its value stack, heap stash, and
// everything rooted there) at a time. There is no internal locking.
package engine
