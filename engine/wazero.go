package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/ThomasKrenn/dukglue/errors"
)

// Duktape type constants as reported by duk_get_type.
const (
	dukTypeNone      = 0
	dukTypeUndefined = 1
	dukTypeNull      = 2
	dukTypeBoolean   = 3
	dukTypeNumber    = 4
	dukTypeString    = 5
	dukTypeObject    = 6
	dukTypeBuffer    = 7
	dukTypePointer   = 8
	dukTypeLightfunc = 9
)

// WazeroEngine hosts a Duktape interpreter compiled to WebAssembly and
// exposes each Duktape heap as a Context. The guest module is a stock
// Duktape build plus a two-function export shim:
//
//	duk_bridge_create_heap()        wraps duk_create_heap_default
//	duk_bridge_peval(ctx, src, len) wraps duk_peval_lstring
//
// All other required exports (duk_push_*, duk_get_*, duk_dup, duk_remove,
// duk_pop_n, duk_equals, duk_push_heap_stash, duk_alloc, duk_free, ...) are
// plain Duktape API functions.
type WazeroEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// NewWazeroEngine compiles a Duktape wasm build for later heap creation.
func NewWazeroEngine(ctx context.Context, wasmBytes []byte) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, wasmBytes, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("compile duktape module").
			Cause(err).
			Build()
	}

	return &WazeroEngine{runtime: runtime, compiled: compiled}, nil
}

// Close releases the wazero runtime and all live contexts.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

var nextInstanceID atomic.Uint64

// WazeroContext is a Duktape heap inside a guest instance, exposed through
// the Context contract. It is single-goroutine like every Context.
type WazeroContext struct {
	goctx   context.Context // bounds guest execution; calls never block
	module  api.Module
	mem     api.Memory
	id      uint64
	heap    uint32 // duk_context* in guest memory
	scratch uint32 // 8-byte guest buffer for size_t out-params

	fns map[string]api.Function
}

// exported guest functions the context resolves at creation.
var guestExports = []string{
	"duk_bridge_create_heap",
	"duk_bridge_peval",
	"duk_destroy_heap",
	"duk_get_top",
	"duk_push_undefined",
	"duk_push_null",
	"duk_push_boolean",
	"duk_push_number",
	"duk_push_lstring",
	"duk_push_pointer",
	"duk_push_array",
	"duk_push_heap_stash",
	"duk_dup",
	"duk_remove",
	"duk_pop_n",
	"duk_get_type",
	"duk_get_boolean",
	"duk_get_number",
	"duk_get_lstring",
	"duk_get_pointer",
	"duk_get_prop_lstring",
	"duk_put_prop_lstring",
	"duk_has_prop_string",
	"duk_get_prop_index",
	"duk_put_prop_index",
	"duk_get_length",
	"duk_equals",
	"duk_safe_to_lstring",
	"duk_alloc",
	"duk_free",
}

// NewContext instantiates the guest module and creates a fresh Duktape heap.
func (e *WazeroEngine) NewContext(ctx context.Context) (*WazeroContext, error) {
	id := nextInstanceID.Add(1)

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.New(errors.PhaseEngine, errors.KindNotInitialized).
			Detail("instantiate duktape module").
			Cause(err).
			Build()
	}

	c := &WazeroContext{
		goctx:  ctx,
		module: mod,
		mem:    mod.Memory(),
		id:     id,
		fns:    make(map[string]api.Function, len(guestExports)),
	}
	for _, name := range guestExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			_ = mod.Close(ctx)
			return nil, errors.New(errors.PhaseEngine, errors.KindNotInitialized).
				Detail("guest does not export %s", name).
				Build()
		}
		c.fns[name] = fn
	}

	heap := c.call("duk_bridge_create_heap")
	if heap == 0 {
		_ = mod.Close(ctx)
		return nil, errors.NotInitialized(errors.PhaseEngine, "duktape heap")
	}
	c.heap = uint32(heap)
	c.scratch = uint32(c.call("duk_alloc", uint64(c.heap), 8))

	debugf("created duktape heap: instance=%d heap=%#x", id, c.heap)
	Logger().Debug("duktape heap created",
		zap.Uint64("instance", id),
		zap.Uint32("heap", c.heap))
	return c, nil
}

// Close destroys the heap and the guest instance.
func (c *WazeroContext) Close() error {
	c.call("duk_free", uint64(c.heap), uint64(c.scratch))
	c.call("duk_destroy_heap", uint64(c.heap))
	return c.module.Close(c.goctx)
}

// call invokes a guest export. A trap inside the engine leaves the heap in
// an unknown state and is not recoverable, so it panics with a structured
// error rather than threading error returns through every stack operation.
func (c *WazeroContext) call(name string, args ...uint64) uint64 {
	res, err := c.fns[name].Call(c.goctx, args...)
	if err != nil {
		panic(errors.Trap(name, err))
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

// alloc copies b into guest memory, appending a NUL when cstr is set.
// Callers free the returned pointer with free.
func (c *WazeroContext) alloc(b []byte, cstr bool) (ptr, size uint32) {
	size = uint32(len(b))
	if cstr {
		size++
	}
	if size == 0 {
		size = 1 // duk_alloc(0) may return NULL; keep the pointer valid
	}
	ptr = uint32(c.call("duk_alloc", uint64(c.heap), uint64(size)))
	if ptr == 0 {
		panic(errors.New(errors.PhaseEngine, errors.KindTrap).
			Detail("duk_alloc of %d bytes failed", size).
			Build())
	}
	if !c.mem.Write(ptr, b) {
		panic(errors.Trap("memory.write", nil))
	}
	if cstr && !c.mem.WriteByte(ptr+uint32(len(b)), 0) {
		panic(errors.Trap("memory.write", nil))
	}
	return ptr, size
}

func (c *WazeroContext) free(ptr uint32) {
	c.call("duk_free", uint64(c.heap), uint64(ptr))
}

// readGuestString copies length-prefixed string data out of guest memory.
// The guest pointer is only stable until Duktape next runs, so the bytes
// are copied eagerly.
func (c *WazeroContext) readGuestString(ptr uint32) []byte {
	n, ok := c.mem.ReadUint32Le(c.scratch)
	if !ok {
		panic(errors.Trap("memory.read", nil))
	}
	if n == 0 {
		return nil
	}
	view, ok := c.mem.Read(ptr, n)
	if !ok {
		panic(errors.Trap("memory.read", nil))
	}
	out := make([]byte, n)
	copy(out, view)
	return out
}

func (c *WazeroContext) InstanceID() uint64 { return c.id }

func (c *WazeroContext) Depth() int {
	return int(int32(c.call("duk_get_top", uint64(c.heap))))
}

func (c *WazeroContext) PushUndefined() {
	c.call("duk_push_undefined", uint64(c.heap))
}

func (c *WazeroContext) PushNull() {
	c.call("duk_push_null", uint64(c.heap))
}

func (c *WazeroContext) PushBoolean(v bool) {
	b := uint64(0)
	if v {
		b = 1
	}
	c.call("duk_push_boolean", uint64(c.heap), b)
}

func (c *WazeroContext) PushNumber(v float64) {
	c.call("duk_push_number", uint64(c.heap), api.EncodeF64(v))
}

func (c *WazeroContext) PushString(b []byte) {
	ptr, _ := c.alloc(b, false)
	c.call("duk_push_lstring", uint64(c.heap), uint64(ptr), uint64(len(b)))
	c.free(ptr)
}

func (c *WazeroContext) PushPointer(p uintptr) {
	c.call("duk_push_pointer", uint64(c.heap), uint64(uint32(p)))
}

func (c *WazeroContext) PushArray() {
	c.call("duk_push_array", uint64(c.heap))
}

func (c *WazeroContext) Dup(idx int) {
	c.call("duk_dup", uint64(c.heap), encodeIdx(idx))
}

func (c *WazeroContext) Remove(idx int) {
	c.call("duk_remove", uint64(c.heap), encodeIdx(idx))
}

func (c *WazeroContext) Pop(n int) {
	c.call("duk_pop_n", uint64(c.heap), encodeIdx(n))
}

func (c *WazeroContext) TypeAt(idx int) Type {
	switch c.call("duk_get_type", uint64(c.heap), encodeIdx(idx)) & 0xff {
	case dukTypeUndefined, dukTypeNone:
		return TypeUndefined
	case dukTypeNull:
		return TypeNull
	case dukTypeBoolean:
		return TypeBoolean
	case dukTypeNumber:
		return TypeNumber
	case dukTypeString:
		return TypeString
	case dukTypePointer:
		return TypePointer
	default:
		// Buffers and lightfuncs are heap values; root them like objects.
		return TypeObject
	}
}

func (c *WazeroContext) Boolean(idx int) bool {
	return c.call("duk_get_boolean", uint64(c.heap), encodeIdx(idx)) != 0
}

func (c *WazeroContext) Number(idx int) float64 {
	return api.DecodeF64(c.call("duk_get_number", uint64(c.heap), encodeIdx(idx)))
}

func (c *WazeroContext) StringBytes(idx int) []byte {
	ptr := c.call("duk_get_lstring", uint64(c.heap), encodeIdx(idx), uint64(c.scratch))
	return c.readGuestString(uint32(ptr))
}

func (c *WazeroContext) Pointer(idx int) uintptr {
	return uintptr(uint32(c.call("duk_get_pointer", uint64(c.heap), encodeIdx(idx))))
}

func (c *WazeroContext) GetProp(objIdx int, key string) bool {
	ptr, _ := c.alloc([]byte(key), false)
	found := c.call("duk_get_prop_lstring", uint64(c.heap), encodeIdx(objIdx),
		uint64(ptr), uint64(len(key)))
	c.free(ptr)
	return found != 0
}

func (c *WazeroContext) PutProp(objIdx int, key string) {
	// The pushed key shifts nothing: duk_put_prop_lstring consumes only
	// the stack top, so objIdx keeps its meaning for negative indices too
	// as long as it does not address the top slot.
	ptr, _ := c.alloc([]byte(key), false)
	c.call("duk_put_prop_lstring", uint64(c.heap), encodeIdx(objIdx),
		uint64(ptr), uint64(len(key)))
	c.free(ptr)
}

func (c *WazeroContext) HasProp(objIdx int, key string) bool {
	ptr, _ := c.alloc([]byte(key), true)
	has := c.call("duk_has_prop_string", uint64(c.heap), encodeIdx(objIdx), uint64(ptr))
	c.free(ptr)
	return has != 0
}

func (c *WazeroContext) GetIndex(objIdx int, i uint32) {
	c.call("duk_get_prop_index", uint64(c.heap), encodeIdx(objIdx), uint64(i))
}

func (c *WazeroContext) PutIndex(objIdx int, i uint32) {
	c.call("duk_put_prop_index", uint64(c.heap), encodeIdx(objIdx), uint64(i))
}

func (c *WazeroContext) Length(idx int) uint32 {
	return uint32(c.call("duk_get_length", uint64(c.heap), encodeIdx(idx)))
}

func (c *WazeroContext) Equals(a, b int) bool {
	return c.call("duk_equals", uint64(c.heap), encodeIdx(a), encodeIdx(b)) != 0
}

func (c *WazeroContext) PushStash() {
	c.call("duk_push_heap_stash", uint64(c.heap))
}

// Eval runs a script fragment via the guest's protected-eval shim, leaving
// the result (or nothing) on the stack. Not part of the Context contract;
// the demo CLI uses it to build real script objects.
func (c *WazeroContext) Eval(src string) error {
	ptr, _ := c.alloc([]byte(src), false)
	rc := c.call("duk_bridge_peval", uint64(c.heap), uint64(ptr), uint64(len(src)))
	c.free(ptr)
	if rc == 0 {
		return nil
	}

	// Error value is on the stack top; render and pop it.
	msgPtr := c.call("duk_safe_to_lstring", uint64(c.heap), encodeIdx(-1), uint64(c.scratch))
	msg := string(c.readGuestString(uint32(msgPtr)))
	c.Pop(1)
	return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		Detail("eval: %s", msg).
		Build()
}

// encodeIdx sign-extends a stack index into the i32 calling convention.
func encodeIdx(idx int) uint64 {
	return api.EncodeI32(int32(idx))
}
