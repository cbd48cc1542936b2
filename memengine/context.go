package memengine

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ThomasKrenn/dukglue/engine"
	"github.com/ThomasKrenn/dukglue/errors"
)

var nextInstanceID atomic.Uint64

// Context is an in-memory engine.Context. Values live in a small
// ECMAScript-flavored model: scalars carried inline, objects as heap
// records with keyed properties and indexed elements. Object equality is
// identity, the way engines compare heap references.
//
// Like every Context it is single-goroutine; there is no locking.
type Context struct {
	id      uint64
	stack   []value
	stash   *Object
	objects map[*Object]struct{}
	log     *zap.Logger
}

// value is the tagged stack cell. Exactly one payload field is meaningful.
type value struct {
	t engine.Type
	b bool
	n float64
	p uintptr
	s string
	o *Object
}

// Object is a script-side heap record. It dies when a Collect pass finds it
// unreachable from the stash or the stack; any use after that panics, which
// is exactly the bug rooting exists to prevent.
type Object struct {
	props map[string]value
	elems []value
	dead  bool
}

// New creates an empty engine instance with its stash already rooted.
func New() *Context {
	return NewWithLogger(nil)
}

// NewWithLogger creates an instance that logs collection passes to l.
func NewWithLogger(l *zap.Logger) *Context {
	if l == nil {
		l = zap.NewNop()
	}
	c := &Context{
		id:      nextInstanceID.Add(1),
		objects: make(map[*Object]struct{}),
		log:     l,
	}
	c.stash = c.newObject()
	return c
}

func (c *Context) newObject() *Object {
	o := &Object{props: make(map[string]value)}
	c.objects[o] = struct{}{}
	return o
}

func (c *Context) InstanceID() uint64 { return c.id }

func (c *Context) Depth() int { return len(c.stack) }

// normalize maps a possibly-negative stack index to an absolute one.
func (c *Context) normalize(idx int) int {
	abs := idx
	if idx < 0 {
		abs = len(c.stack) + idx
	}
	if abs < 0 || abs >= len(c.stack) {
		panic(errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("stack index %d out of range (depth %d)", idx, len(c.stack)).
			Build())
	}
	return abs
}

func (c *Context) at(idx int) value {
	return c.stack[c.normalize(idx)]
}

func (c *Context) push(v value) {
	c.stack = append(c.stack, v)
}

func (c *Context) pop() value {
	v := c.at(-1)
	c.stack = c.stack[:len(c.stack)-1]
	return v
}

// checkAlive guards every object access. A dead object means the caller
// held a reference across a collection without rooting it.
func (c *Context) checkAlive(o *Object) *Object {
	if o.dead {
		panic(errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("object used after collection").
			Build())
	}
	return o
}

func (c *Context) objectAt(idx int) *Object {
	v := c.at(idx)
	if v.t != engine.TypeObject {
		panic(errors.TypeMismatch(errors.PhaseEngine, v.t.String(), "object"))
	}
	return c.checkAlive(v.o)
}

func (c *Context) PushUndefined() { c.push(value{t: engine.TypeUndefined}) }
func (c *Context) PushNull()      { c.push(value{t: engine.TypeNull}) }

func (c *Context) PushBoolean(v bool) { c.push(value{t: engine.TypeBoolean, b: v}) }

func (c *Context) PushNumber(v float64) { c.push(value{t: engine.TypeNumber, n: v}) }

func (c *Context) PushString(b []byte) {
	c.push(value{t: engine.TypeString, s: string(b)})
}

func (c *Context) PushPointer(p uintptr) { c.push(value{t: engine.TypePointer, p: p}) }

func (c *Context) PushArray() {
	c.push(value{t: engine.TypeObject, o: c.newObject()})
}

// PushObject pushes a fresh plain object. Not part of the Context contract;
// tests and the demo CLI use it to build script-side state.
func (c *Context) PushObject() *Object {
	o := c.newObject()
	c.push(value{t: engine.TypeObject, o: o})
	return o
}

// PushObjectRef pushes an existing object reference. Not part of the
// Context contract; tests use it to simulate a native reference held
// across collection without rooting.
func (c *Context) PushObjectRef(o *Object) {
	c.push(value{t: engine.TypeObject, o: c.checkAlive(o)})
}

func (c *Context) Dup(idx int) {
	v := c.at(idx)
	if v.t == engine.TypeObject {
		c.checkAlive(v.o)
	}
	c.push(v)
}

func (c *Context) Remove(idx int) {
	abs := c.normalize(idx)
	c.stack = append(c.stack[:abs], c.stack[abs+1:]...)
}

func (c *Context) Pop(n int) {
	if n > len(c.stack) {
		panic(errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("pop %d exceeds depth %d", n, len(c.stack)).
			Build())
	}
	c.stack = c.stack[:len(c.stack)-n]
}

func (c *Context) TypeAt(idx int) engine.Type { return c.at(idx).t }

func (c *Context) Boolean(idx int) bool { return c.require(idx, engine.TypeBoolean).b }

func (c *Context) Number(idx int) float64 { return c.require(idx, engine.TypeNumber).n }

func (c *Context) StringBytes(idx int) []byte {
	return []byte(c.require(idx, engine.TypeString).s)
}

func (c *Context) Pointer(idx int) uintptr { return c.require(idx, engine.TypePointer).p }

func (c *Context) require(idx int, t engine.Type) value {
	v := c.at(idx)
	if v.t != t {
		panic(errors.TypeMismatch(errors.PhaseEngine, v.t.String(), t.String()))
	}
	return v
}

func (c *Context) GetProp(objIdx int, key string) bool {
	o := c.objectAt(objIdx)
	v, ok := o.props[key]
	if !ok {
		c.PushUndefined()
		return false
	}
	c.push(v)
	return true
}

func (c *Context) PutProp(objIdx int, key string) {
	o := c.objectAt(objIdx)
	o.props[key] = c.pop()
}

func (c *Context) HasProp(objIdx int, key string) bool {
	_, ok := c.objectAt(objIdx).props[key]
	return ok
}

func (c *Context) GetIndex(objIdx int, i uint32) {
	o := c.objectAt(objIdx)
	if int(i) >= len(o.elems) {
		c.PushUndefined()
		return
	}
	c.push(o.elems[i])
}

func (c *Context) PutIndex(objIdx int, i uint32) {
	o := c.objectAt(objIdx)
	v := c.pop()
	for int(i) >= len(o.elems) {
		o.elems = append(o.elems, value{t: engine.TypeUndefined})
	}
	o.elems[i] = v
}

func (c *Context) Length(idx int) uint32 {
	return uint32(len(c.objectAt(idx).elems))
}

func (c *Context) Equals(a, b int) bool {
	va, vb := c.at(a), c.at(b)
	if va.t != vb.t {
		return false
	}
	switch va.t {
	case engine.TypeUndefined, engine.TypeNull:
		return true
	case engine.TypeBoolean:
		return va.b == vb.b
	case engine.TypeNumber:
		return va.n == vb.n
	case engine.TypeString:
		return va.s == vb.s
	case engine.TypeObject:
		return c.checkAlive(va.o) == c.checkAlive(vb.o)
	case engine.TypePointer:
		return va.p == vb.p
	}
	return false
}

func (c *Context) PushStash() {
	c.push(value{t: engine.TypeObject, o: c.stash})
}

// Live returns the number of objects the collector considers reachable or
// not yet swept. The stash itself counts.
func (c *Context) Live() int { return len(c.objects) }

// Collect runs a mark/sweep pass over the stash and stack roots. Unreachable
// objects are marked dead and any later use of them panics. This is how
// tests prove that a root table slot really keeps an object alive.
func (c *Context) Collect() {
	marked := make(map[*Object]struct{}, len(c.objects))
	c.mark(value{t: engine.TypeObject, o: c.stash}, marked)
	for _, v := range c.stack {
		c.mark(v, marked)
	}

	swept := 0
	for o := range c.objects {
		if _, ok := marked[o]; ok {
			continue
		}
		o.dead = true
		o.props = nil
		o.elems = nil
		delete(c.objects, o)
		swept++
	}

	c.log.Debug("collected",
		zap.Uint64("instance", c.id),
		zap.Int("swept", swept),
		zap.Int("live", len(c.objects)))
}

func (c *Context) mark(v value, marked map[*Object]struct{}) {
	if v.t != engine.TypeObject || v.o == nil {
		return
	}
	if _, ok := marked[v.o]; ok {
		return
	}
	marked[v.o] = struct{}{}
	for _, pv := range v.o.props {
		c.mark(pv, marked)
	}
	for _, ev := range v.o.elems {
		c.mark(ev, marked)
	}
}
