package vm

import (
	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
)

// NativeFn is a host-provided callable. It reads its arguments through
// VM.Argument/VM.NumParams, pushes its results with VM.Push, and returns
// how many it pushed. A returned error is translated into a RuntimeError
// for the calling script; the native must not leave engine state corrupted.
type NativeFn func(vm *VM) (int, error)

// objectKind discriminates the payload of an object-heap slot.
type objectKind uint8

const (
	objFree objectKind = iota
	objTable
	objClosure
	objNative
)

// Closure is a runtime instance of a prototype bound to a specific set of
// captured upvalues. The prototype is borrowed from the loaded chunk, which
// must outlive every call that can reach it; the upvalue slots are owned
// references into the upvalue heap, fixed at creation.
type Closure struct {
	Proto  *bytecode.Prototype
	Upvals []int
}

// Object is one reference-counted cell of the object heap, holding exactly
// one of {nothing, table, closure, native closure}. A slot with a zero
// reference count is free and will be the first choice of the next
// allocation.
type Object struct {
	refs    int
	kind    objectKind
	table   *Table
	closure *Closure
	native  NativeFn
}

func (o *Object) IsTable() bool   { return o.kind == objTable }
func (o *Object) IsClosure() bool { return o.kind == objClosure }
func (o *Object) IsNative() bool  { return o.kind == objNative }

// Callable reports whether the object can appear as a callee.
func (o *Object) Callable() bool {
	return o.kind == objClosure || o.kind == objNative
}

func (o *Object) Table() *Table     { return o.table }
func (o *Object) Closure() *Closure { return o.closure }

// upvalState tracks the two-state lifecycle of a captured-variable cell.
// The open→closed transition is one-way; a closed upvalue never reopens.
type upvalState uint8

const (
	upvalUnassigned upvalState = iota
	upvalOpen                  // aliases a live register-stack slot
	upvalClosed                // owns its value
)

// Upvalue is one reference-counted captured-variable cell. While open it
// holds an absolute register index into the owning frame; closing copies
// the current register value into the cell and decouples it from the stack.
type Upvalue struct {
	refs     int
	state    upvalState
	stackIdx int   // valid while state == upvalOpen
	val      Value // valid while state == upvalClosed
}

func (uv *Upvalue) Open() bool   { return uv.state == upvalOpen }
func (uv *Upvalue) Closed() bool { return uv.state == upvalClosed }
