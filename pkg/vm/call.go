package vm

import (
	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// callStatus carries per-activation flags.
type callStatus uint8

const (
	statusScript callStatus = 1 << iota // script frame (has base/pc)
	statusFresh                         // entered from the host; returning exits execute
	statusTail                          // reused a caller's activation record
)

// callInfo is one activation record.
type callInfo struct {
	funcIdx  int // register index of the called value
	base     int // script frames: first register of the frame
	pc       int // script frames: program counter
	nresults int // requested return count, or MultRet
	nargs    int // actual argument count at entry
	status   callStatus
}

// Call invokes the callable value already sitting on the register stack
// with nargs argument values in the slots above it. nresults fixes how many
// results land back at the callee's register slot (nil-padded or truncated),
// or MultRet to keep everything the call produces.
//
// On error the engine unwinds its call-info and register stacks back to the
// pre-call depth and remains usable for subsequent calls.
func (vm *VM) Call(nargs, nresults int) (err error) {
	funcIdx := vm.top - nargs - 1
	if funcIdx < 0 {
		return qerr.NewRuntimeError("call: %d arguments but only %d stack values", nargs, vm.top)
	}

	entryDepth := len(vm.callinfo)

	defer func() {
		if r := recover(); r != nil {
			qe, ok := r.(qerr.QuokkaError)
			if !ok {
				// Engine defect (internal invariant violation): do not
				// swallow it.
				panic(r)
			}
			vm.unwind(entryDepth, funcIdx)
			err = qe
		}
		if err != nil {
			vm.log.Errorf("call failed: %s", err.Error())
		}
	}()

	isNative, err := vm.precall(funcIdx, nresults)
	if err != nil {
		vm.unwind(entryDepth, funcIdx)
		return err
	}
	if isNative {
		return nil
	}

	vm.current().status |= statusFresh
	if err := vm.execute(); err != nil {
		vm.unwind(entryDepth, funcIdx)
		return err
	}
	return nil
}

// unwind restores the pre-call stack shape after a failed call, releasing
// every reference the abandoned frames held.
func (vm *VM) unwind(ciDepth, top int) {
	vm.callinfo = vm.callinfo[:ciDepth]
	vm.setTop(top)
}

// precall validates the callee and begins the invocation. Native callees
// run synchronously to completion (results already relocated on return);
// script callees get a fresh activation record and report isNative=false so
// the caller transitions to execute.
func (vm *VM) precall(funcIdx, nresults int) (isNative bool, err error) {
	v := vm.registers[funcIdx]
	if !v.IsObject() {
		return false, qerr.NewRuntimeError("attempt to call a %s value", v.Type())
	}
	o := vm.objects.get(v.obj)
	if !o.Callable() {
		return false, qerr.NewRuntimeError("attempt to call a non-callable object")
	}
	if len(vm.callinfo) >= vm.MaxCallDepth {
		return false, qerr.NewResourceError("call stack overflow (depth %d)", len(vm.callinfo))
	}

	nargs := vm.top - funcIdx - 1

	if o.kind == objNative {
		vm.callinfo = append(vm.callinfo, callInfo{
			funcIdx:  funcIdx,
			nresults: nresults,
			nargs:    nargs,
		})
		n, ferr := o.native(vm)
		if ferr != nil {
			vm.callinfo = vm.callinfo[:len(vm.callinfo)-1]
			if qe, ok := ferr.(qerr.QuokkaError); ok {
				return true, qe
			}
			return true, qerr.NewRuntimeError("native function failed").CausedBy(ferr)
		}
		if n < 0 || n > vm.top-funcIdx-1 {
			vm.callinfo = vm.callinfo[:len(vm.callinfo)-1]
			return true, qerr.NewRuntimeError("native function reported %d results but pushed fewer", n)
		}
		vm.postcall(vm.top-n, n)
		return true, nil
	}

	proto := o.closure.Proto
	var base int
	if proto.IsVararg {
		base = vm.adjustVarargs(proto, funcIdx, nargs)
	} else {
		for ; nargs < int(proto.NumParams); nargs++ {
			vm.push(Nil())
		}
		base = funcIdx + 1
	}

	// Reserve the frame's declared register window. Extra arguments beyond
	// the window are dropped, missing registers come up nil.
	vm.setTop(base + int(proto.MaxStackSize))

	vm.callinfo = append(vm.callinfo, callInfo{
		funcIdx:  funcIdx,
		base:     base,
		pc:       0,
		nresults: nresults,
		nargs:    nargs,
		status:   statusScript,
	})
	return false, nil
}

// adjustVarargs rebases a vararg frame: the fixed parameters move up above
// the supplied arguments, which stay where they are as the frame's varargs.
func (vm *VM) adjustVarargs(proto *bytecode.Prototype, funcIdx, nargs int) int {
	np := int(proto.NumParams)
	fixed := funcIdx + 1
	base := vm.top
	for i := 0; i < np; i++ {
		if i < nargs {
			// Transfer, not copy: the original slot becomes nil and the
			// reference moves with the value.
			v := vm.registers[fixed+i]
			vm.registers[fixed+i] = Nil()
			vm.push(v)
		} else {
			vm.push(Nil())
		}
	}
	return base
}

// postcall relocates the produced results into the caller's expected window
// starting at the callee register, truncating or nil-padding to the
// requested count (MultRet keeps everything), then pops the activation.
func (vm *VM) postcall(firstResult, nproduced int) {
	ci := vm.current()
	res := ci.funcIdx
	wanted := ci.nresults
	vm.callinfo = vm.callinfo[:len(vm.callinfo)-1]

	if wanted == MultRet {
		for i := 0; i < nproduced; i++ {
			vm.moveReg(res+i, firstResult+i)
		}
		vm.setTop(res + nproduced)
		return
	}

	n := min(nproduced, wanted)
	for i := 0; i < n; i++ {
		vm.moveReg(res+i, firstResult+i)
	}
	// The pad can extend past every register the call itself touched when
	// the caller requested more results than the stack currently holds.
	vm.growStack(res + wanted)
	for i := n; i < wanted; i++ {
		vm.setReg(res+i, Nil())
	}
	vm.setTop(res + wanted)
}

// closeUpvals closes every open upvalue addressing a register at or above
// level: the current register value is copied into the cell and the cell
// flips to closed, decoupling it from the stack before the slots are
// reused. The transition is irreversible.
func (vm *VM) closeUpvals(level int) {
	for i := range vm.upvals.slots {
		uv := &vm.upvals.slots[i]
		if uv.refs > 0 && uv.state == upvalOpen && uv.stackIdx >= level {
			v := vm.registers[uv.stackIdx]
			vm.retainValue(v)
			uv.state = upvalClosed
			uv.val = v
		}
	}
}

// findOrCreateOpenUpval returns an owned reference to the open upvalue
// aliasing the given absolute register, creating the cell if no live one
// addresses that slot yet. Reads and writes through the upvalue and through
// the register are the same storage while it stays open.
func (vm *VM) findOrCreateOpenUpval(absIdx int) int {
	for i := range vm.upvals.slots {
		uv := &vm.upvals.slots[i]
		if uv.refs > 0 && uv.state == upvalOpen && uv.stackIdx == absIdx {
			uv.refs++
			return i
		}
	}
	slot := vm.upvals.alloc()
	cell := vm.upvals.get(slot)
	cell.state = upvalOpen
	cell.stackIdx = absIdx
	return slot
}

// upvalGet reads through a closure's upvalue, whichever state it is in.
func (vm *VM) upvalGet(cl *Closure, idx int) Value {
	uv := vm.upvals.get(cl.Upvals[idx])
	if uv.state == upvalOpen {
		return vm.registers[uv.stackIdx]
	}
	return uv.val
}

// upvalSet writes through a closure's upvalue. An open cell writes straight
// to its stack slot; a closed (or never-assigned) cell takes ownership of
// the value itself.
func (vm *VM) upvalSet(cl *Closure, idx int, v Value) {
	uv := vm.upvals.get(cl.Upvals[idx])
	if uv.state == upvalOpen {
		vm.setReg(uv.stackIdx, v)
		return
	}
	vm.retainValue(v)
	old := uv.val
	uv.val = v
	uv.state = upvalClosed
	vm.releaseValue(old)
}
