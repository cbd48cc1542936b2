// Package dukglue provides a native variant value for an embedded,
// garbage-collected script engine.
//
// A script engine exposes its values only through a stack-based calling
// convention: there is no stable native handle to a script object that the
// collector will not move or reclaim. Value bridges that gap. It holds one
// script value on the native side (undefined, null, boolean, number, an
// owned string copy, an opaque pointer, or a script-object reference), and
// for objects it keeps the referent alive by parking a duplicate reference
// in a GC-rooted table inside the engine's heap stash.
//
// # Architecture Overview
//
// The library is organized into a few packages with distinct
// responsibilities:
//
//	dukglue/         Root package: the Value variant and stack marshaling
//	├── engine/      Engine service contract + wazero-hosted Duktape engine
//	├── roots/       Root table: GC rooting with an intrusive free list
//	├── memengine/   In-memory reference engine with a testable collector
//	├── errors/      Structured error types for debugging
//	└── cmd/dukval/  Demo CLI and interactive stack/root inspector
//
// # Quick Start
//
// Marshal a value off the stack, hold it, and push it back later:
//
//	ctx := memengine.New()
//	ctx.PushNumber(42)
//
//	v, err := dukglue.TakeFromStack(ctx, -1, engine.MaskAny)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Release()
//
//	// ... script code runs, the engine's heap churns ...
//
//	v.Push() // 42 is back on the stack
//
// # Ownership
//
// Values can be copied freely. Reference counting coordinates when the
// underlying root should be released, and the counter is only allocated
// once a value is actually copied; a single owner pays nothing. Move is
// available when sharing is not wanted:
//
//	w := v.Copy()  // v and w share one root table slot
//	m := v.Move()  // m takes over, v is undefined, no engine interaction
//
// Release the last copy and the slot returns to the free list, letting the
// engine collect the object.
//
// Two independently marshaled values may reference the same script object
// through separate slots. That is deliberate: slots exist to prevent
// collection and to find the object again, not to canonicalize identity.
//
// # Thread Safety
//
// An engine instance and every Value bound to it belong to one goroutine
// at a time. Nothing here locks, blocks, or schedules; all operations are
// synchronous calls into the engine's stack API.
package dukglue
