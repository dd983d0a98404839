package vm

// The object heap and upvalue heap are arenas of reference-counted slots
// addressed by index. Allocation reuses the lowest-indexed free slot before
// growing, which bounds each arena to the historical high-water mark of
// live cells. There is no cycle detection: tables or closures that
// reference each other in a loop never reach a zero count and persist until
// the VM itself is dropped. That is an accepted, documented limitation.

type objectHeap struct {
	slots []Object
}

// alloc claims a slot and returns its index with one owned reference.
// The payload starts empty; the caller fills it in.
func (h *objectHeap) alloc() int {
	for i := range h.slots {
		if h.slots[i].refs == 0 {
			h.slots[i] = Object{refs: 1}
			return i
		}
	}
	h.slots = append(h.slots, Object{refs: 1})
	return len(h.slots) - 1
}

func (h *objectHeap) get(i int) *Object {
	return &h.slots[i]
}

type upvalHeap struct {
	slots []Upvalue
}

func (h *upvalHeap) alloc() int {
	for i := range h.slots {
		if h.slots[i].refs == 0 {
			h.slots[i] = Upvalue{refs: 1}
			return i
		}
	}
	h.slots = append(h.slots, Upvalue{refs: 1})
	return len(h.slots) - 1
}

func (h *upvalHeap) get(i int) *Upvalue {
	return &h.slots[i]
}

// --- Reference counting ---
//
// Every owning location (register slot, table entry, upvalue payload,
// closure upvalue list, the distinguished environment, host-held handles)
// accounts for exactly one reference. Duplication retains, overwriting or
// destruction releases, and a count reaching zero resets the slot's payload
// and makes it reusable.

func (vm *VM) retainValue(v Value) {
	if v.typ == TypeObject {
		vm.objects.get(v.obj).refs++
	}
}

func (vm *VM) releaseValue(v Value) {
	if v.typ == TypeObject {
		vm.releaseObject(v.obj)
	}
}

func (vm *VM) releaseObject(slot int) {
	o := vm.objects.get(slot)
	if o.refs <= 0 {
		panic("vm: release of a dead object slot")
	}
	o.refs--
	if o.refs > 0 {
		return
	}
	// Last reference gone: drop the payload, releasing everything it owned.
	switch o.kind {
	case objTable:
		for _, e := range o.table.Entries {
			vm.releaseValue(e.Key)
			vm.releaseValue(e.Value)
		}
	case objClosure:
		for _, uv := range o.closure.Upvals {
			vm.releaseUpval(uv)
		}
	}
	*o = Object{}
}

func (vm *VM) retainUpval(slot int) {
	vm.upvals.get(slot).refs++
}

func (vm *VM) releaseUpval(slot int) {
	uv := vm.upvals.get(slot)
	if uv.refs <= 0 {
		panic("vm: release of a dead upvalue slot")
	}
	uv.refs--
	if uv.refs > 0 {
		return
	}
	if uv.state == upvalClosed {
		vm.releaseValue(uv.val)
	}
	*uv = Upvalue{}
}

// --- Public allocation surface ---

// AllocObject claims an empty object slot and returns its index. The
// returned reference is owned by the caller; release it with Release on a
// Value handle or hand it to an owning location.
func (vm *VM) AllocObject() int {
	return vm.objects.alloc()
}

// AllocUpval claims an upvalue slot in the unassigned state.
func (vm *VM) AllocUpval() int {
	return vm.upvals.alloc()
}

// AllocTable claims an object slot holding a fresh empty table and returns
// an owning Value handle for it.
func (vm *VM) AllocTable() Value {
	slot := vm.objects.alloc()
	o := vm.objects.get(slot)
	o.kind = objTable
	o.table = NewTable()
	return ObjectRef(slot)
}

// AllocNativeFunction claims an object slot wrapping a host callable and
// returns an owning Value handle for it.
func (vm *VM) AllocNativeFunction(fn NativeFn) Value {
	slot := vm.objects.alloc()
	o := vm.objects.get(slot)
	o.kind = objNative
	o.native = fn
	return ObjectRef(slot)
}

// Object resolves a Value handle to its heap object. The pointer is only
// valid until the next allocation.
func (vm *VM) Object(v Value) *Object {
	return vm.objects.get(v.obj)
}

// Retain adds a host-owned reference to an object value. Scalars pass
// through untouched.
func (vm *VM) Retain(v Value) {
	vm.retainValue(v)
}

// Release drops a host-owned reference previously obtained from Pop,
// AllocTable, AllocNativeFunction or Retain.
func (vm *VM) Release(v Value) {
	vm.releaseValue(v)
}
