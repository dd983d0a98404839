package vm

import (
	"github.com/tliron/commonlog"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

const (
	// MultRet requests every result a call produces.
	MultRet = -1

	// DefaultMaxCallDepth bounds the call-info stack.
	DefaultMaxCallDepth = 200

	// DefaultMaxRegisters bounds the register stack.
	DefaultMaxRegisters = 1 << 16
)

// VM is one virtual machine instance: a register stack, a call-info stack,
// an object heap, an upvalue heap and one distinguished global environment.
// A VM exclusively owns all of that state and must never be driven from
// more than one goroutine; parallel embedding takes one VM per goroutine
// with nothing shared.
type VM struct {
	registers []Value
	top       int // logical stack top: one past the last live register
	callinfo  []callInfo

	objects objectHeap
	upvals  upvalHeap

	// The distinguished environment: every top-level free-variable access
	// in loaded bytecode resolves through this table. One VM, one global
	// namespace; isolation means separate VM instances.
	env Value

	// Most recent closure per prototype, for reuse when the captured
	// upvalue set is unchanged. Values are owned object-slot references.
	closureCache map[*bytecode.Prototype]int

	// Resource limits, adjustable before first use.
	MaxCallDepth int
	MaxRegisters int

	log commonlog.Logger
}

// New creates an empty VM with a fresh global environment.
func New() *VM {
	vm := &VM{
		closureCache: make(map[*bytecode.Prototype]int),
		MaxCallDepth: DefaultMaxCallDepth,
		MaxRegisters: DefaultMaxRegisters,
		log:          commonlog.GetLogger("quokka.vm"),
	}
	vm.env = vm.AllocTable()
	return vm
}

// NewWithChunk creates a VM and loads a decoded chunk, leaving the root
// closure on the stack ready for Call. It panics if the chunk cannot be
// loaded; use New and Load to handle untrusted chunks.
func NewWithChunk(c *bytecode.Chunk) *VM {
	vm := New()
	if err := vm.Load(c); err != nil {
		panic(err)
	}
	return vm
}

// Load wraps the chunk's root prototype in a closure and pushes it onto the
// register stack. The root's first upvalue is bound to the distinguished
// environment; any further declared upvalues start closed over nil. The
// chunk must outlive every call that can still reach one of its prototypes.
//
// A root that declares no upvalues has nothing to bind the environment to
// and is rejected before any state changes.
func (vm *VM) Load(c *bytecode.Chunk) error {
	if len(c.Root.Upvalues) == 0 {
		return qerr.NewFormatError("chunk root declares no upvalues; cannot bind the environment")
	}

	slot := vm.objects.alloc()
	o := vm.objects.get(slot)
	o.kind = objClosure
	o.closure = &Closure{Proto: c.Root}

	for i := range c.Root.Upvalues {
		uv := vm.upvals.alloc()
		cell := vm.upvals.get(uv)
		cell.state = upvalClosed
		if i == 0 {
			cell.val = vm.env
			vm.retainValue(vm.env)
		} else {
			cell.val = Nil()
		}
		o.closure.Upvals = append(o.closure.Upvals, uv)
	}

	vm.log.Debugf("loaded chunk %s: %d instructions, %d nested prototypes",
		c.Root.Name(), len(c.Root.Code), len(c.Root.Protos))

	// Transfer our creation reference to the register slot.
	vm.push(ObjectRef(slot))
	return nil
}

// --- Host marshaling surface ---

// Push copies a value onto the stack, retaining any object reference.
func (vm *VM) Push(v Value) {
	vm.retainValue(v)
	vm.push(v)
}

// push places an already-owned value on the stack (ownership transfers to
// the register slot).
func (vm *VM) push(v Value) {
	vm.growStack(vm.top + 1)
	vm.registers[vm.top] = v
	vm.top++
}

// Pop removes and returns the top of the stack. Ownership of an object
// reference transfers to the caller: balance it with Release when done.
func (vm *VM) Pop() Value {
	if vm.top == 0 {
		panic("vm: pop from empty stack")
	}
	vm.top--
	v := vm.registers[vm.top]
	vm.registers[vm.top] = Nil()
	return v
}

// PopN discards the n topmost stack values, releasing their references.
func (vm *VM) PopN(n int) {
	vm.setTop(vm.top - n)
}

// PushGlobal pushes the value stored in the global environment under key.
func (vm *VM) PushGlobal(key Value) {
	vm.Push(vm.EnvTable().Get(key))
}

// Env returns the handle of the distinguished environment table. The VM
// keeps its own reference; do not Release this handle.
func (vm *VM) Env() Value {
	return vm.env
}

// EnvTable returns the distinguished environment as a table for read-side
// convenience. Mutate through SetGlobal so reference counts stay balanced.
func (vm *VM) EnvTable() *Table {
	return vm.objects.get(vm.env.obj).table
}

// GetGlobal reads a global by name. The returned handle is borrowed.
func (vm *VM) GetGlobal(name string) Value {
	return vm.EnvTable().GetStr(name)
}

// SetGlobal stores a value in the global environment.
func (vm *VM) SetGlobal(key, v Value) {
	vm.tableSet(vm.EnvTable(), key, v)
}

// DefineNativeFunction registers a host-provided function reachable
// through the global environment.
func (vm *VM) DefineNativeFunction(name string, fn NativeFn) {
	f := vm.AllocNativeFunction(fn)
	vm.SetGlobal(Str(name), f)
	vm.releaseValue(f)
}

// Argument returns an incoming parameter from within a native callee,
// 1-based. Out-of-range ids read as nil, like a call site that passed too
// few arguments.
func (vm *VM) Argument(id int) Value {
	ci := vm.current()
	if id < 1 || id > ci.nargs {
		return Nil()
	}
	return vm.registers[ci.funcIdx+id]
}

// NumParams returns how many arguments the current native callee received.
func (vm *VM) NumParams() int {
	return vm.current().nargs
}

// Top returns the logical stack top (number of live registers).
func (vm *VM) Top() int {
	return vm.top
}

func (vm *VM) current() *callInfo {
	return &vm.callinfo[len(vm.callinfo)-1]
}

// --- Register stack management ---

// growStack ensures capacity for n registers, never silently overwriting
// unrelated data. Beyond MaxRegisters it fails as a resource error.
func (vm *VM) growStack(n int) {
	if n <= len(vm.registers) {
		return
	}
	if n > vm.MaxRegisters {
		panic(qerr.NewResourceError("register stack overflow (%d > %d)", n, vm.MaxRegisters))
	}
	grown := make([]Value, max(n, len(vm.registers)*2, 64))
	copy(grown, vm.registers)
	vm.registers = grown
}

// setTop moves the logical top, releasing references held by any register
// slots that fall above it.
func (vm *VM) setTop(n int) {
	if n < 0 {
		panic("vm: negative stack top")
	}
	vm.growStack(n)
	for i := n; i < vm.top; i++ {
		vm.releaseValue(vm.registers[i])
		vm.registers[i] = Nil()
	}
	vm.top = n
}

// setReg overwrites one register, retaining the incoming value first so a
// self-assignment cannot free the object being stored.
func (vm *VM) setReg(i int, v Value) {
	vm.retainValue(v)
	vm.releaseValue(vm.registers[i])
	vm.registers[i] = v
}

// setRegOwned stores an already-owned value into a register; ownership
// transfers to the slot without a retain.
func (vm *VM) setRegOwned(i int, v Value) {
	old := vm.registers[i]
	vm.registers[i] = v
	vm.releaseValue(old)
}

// moveReg transfers ownership from one register slot to another without a
// retain/release round trip on the moved value.
func (vm *VM) moveReg(dst, src int) {
	if dst == src {
		return
	}
	vm.releaseValue(vm.registers[dst])
	vm.registers[dst] = vm.registers[src]
	vm.registers[src] = Nil()
}

// tableSet mutates a VM-owned table, keeping the reference counts of keys
// and values balanced. Storing nil removes the entry and drops both the
// stored key's and value's references.
func (vm *VM) tableSet(t *Table, k, v Value) {
	i := t.Find(k)
	if v.IsNil() {
		if i >= 0 {
			e := t.Entries[i]
			t.removeAt(i)
			vm.releaseValue(e.Key)
			vm.releaseValue(e.Value)
		}
		return
	}
	if i >= 0 {
		vm.retainValue(v)
		old := t.Entries[i].Value
		t.Entries[i].Value = v
		vm.releaseValue(old)
		return
	}
	vm.retainValue(k)
	vm.retainValue(v)
	t.Entries = append(t.Entries, TableEntry{Key: k, Value: v})
}
