// Package memengine is an in-memory reference implementation of the
// engine.Context contract.
//
// It exists for two reasons: it lets the bridge's correctness properties be
// tested without a wasm interpreter build, and its Collect method gives
// tests a deterministic garbage collector, so "this slot keeps that object
// alive" is a provable statement rather than a hope. An object swept by
// Collect panics on any later use.
//
// The value model is ECMAScript-flavored: undefined, null, booleans,
// numbers, strings, opaque pointers, and heap objects with string-keyed
// properties plus indexed elements. Object equality is identity.
package memengine
