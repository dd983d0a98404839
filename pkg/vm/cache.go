package vm

import (
	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
)

// The closure cache keeps one owned reference to the most recent closure
// built for each prototype. A CLOSURE instruction reuses the cached object
// only when every upvalue it would capture resolves to the exact same cell
// the cached closure already holds; otherwise a fresh closure replaces the
// cache entry. The cache reference keeps the newest closure per prototype
// alive until it is displaced, which is an accepted cost.

// makeClosure instantiates (or reuses) a closure for a nested prototype.
// base is the current frame's base register and encl the enclosing closure
// whose upvalue list resolves non-stack captures. The returned slot carries
// one owned reference for the caller.
func (vm *VM) makeClosure(proto *bytecode.Prototype, base int, encl *Closure) int {
	if slot, ok := vm.closureCache[proto]; ok && vm.cachedClosureMatches(slot, proto, base, encl) {
		vm.objects.get(slot).refs++
		return slot
	}

	slot := vm.objects.alloc()
	o := vm.objects.get(slot)
	o.kind = objClosure
	cl := &Closure{Proto: proto, Upvals: make([]int, 0, len(proto.Upvalues))}
	o.closure = cl

	for _, d := range proto.Upvalues {
		var cell int
		if d.InStack {
			cell = vm.findOrCreateOpenUpval(base + int(d.Index))
		} else {
			cell = encl.Upvals[d.Index]
			vm.retainUpval(cell)
		}
		cl.Upvals = append(cl.Upvals, cell)
	}

	if old, ok := vm.closureCache[proto]; ok {
		vm.releaseObject(old)
	}
	vm.closureCache[proto] = slot
	o.refs++ // the cache's own reference
	return slot
}

// cachedClosureMatches reports whether the cached closure captures exactly
// the cells a fresh instantiation would capture right now.
func (vm *VM) cachedClosureMatches(slot int, proto *bytecode.Prototype, base int, encl *Closure) bool {
	o := vm.objects.get(slot)
	if o.kind != objClosure || o.closure.Proto != proto {
		return false
	}
	for i, d := range proto.Upvalues {
		cell := o.closure.Upvals[i]
		if d.InStack {
			uv := vm.upvals.get(cell)
			if uv.state != upvalOpen || uv.stackIdx != base+int(d.Index) {
				return false
			}
		} else if cell != encl.Upvals[d.Index] {
			return false
		}
	}
	return true
}
