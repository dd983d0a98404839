package vm

import (
	"errors"
	"testing"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// callGlobal2 builds a root that calls name(k1, k2) and returns the result.
func callGlobal2(name string, k1, k2 bytecode.Constant) *bytecode.Prototype {
	return &bytecode.Prototype{
		MaxStackSize: 3,
		Code: []bytecode.Instruction{
			bytecode.CreateABC(bytecode.OpGetTabUp, 0, 0, k(0)),
			bytecode.CreateABx(bytecode.OpLoadK, 1, 1),
			bytecode.CreateABx(bytecode.OpLoadK, 2, 2),
			bytecode.CreateABC(bytecode.OpCall, 0, 3, 2),
			bytecode.CreateABC(bytecode.OpReturn, 0, 2, 0),
		},
		Constants: []bytecode.Constant{bytecode.StringConstant(name), k1, k2},
		Upvalues:  envUpvals(),
	}
}

func TestNative_CallFromScript(t *testing.T) {
	vm := NewWithChunk(hostChunk(callGlobal2("add", bytecode.IntConstant(3), bytecode.IntConstant(4))))
	vm.DefineNativeFunction("add", func(vm *VM) (int, error) {
		a := vm.Argument(1).AsInt()
		b := vm.Argument(2).AsInt()
		vm.Push(Int(a + b))
		return 1, nil
	})
	if err := vm.Call(0, 1); err != nil {
		t.Fatalf("Unexpected call error: %v", err)
	}
	if v := vm.Pop(); v.AsInt() != 7 {
		t.Errorf("Expected 7, got %s", v.Inspect())
	}
}

func TestNative_ArgumentOutOfRange(t *testing.T) {
	vm := NewWithChunk(hostChunk(callGlobal2("probe", bytecode.IntConstant(1), bytecode.IntConstant(2))))
	var third, params Value
	vm.DefineNativeFunction("probe", func(vm *VM) (int, error) {
		third = vm.Argument(3) // only two were passed
		params = Int(int64(vm.NumParams()))
		vm.Push(Nil())
		return 1, nil
	})
	if err := vm.Call(0, 1); err != nil {
		t.Fatalf("Unexpected call error: %v", err)
	}
	vm.PopN(1)
	if !third.IsNil() {
		t.Errorf("Expected an out-of-range argument to read nil, got %s", third.Inspect())
	}
	if params.AsInt() != 2 {
		t.Errorf("Expected 2 parameters, got %s", params.Inspect())
	}
}

func TestNative_ErrorBecomesRuntimeError(t *testing.T) {
	vm := NewWithChunk(hostChunk(callGlobal2("boom", bytecode.IntConstant(0), bytecode.IntConstant(0))))
	vm.DefineNativeFunction("boom", func(vm *VM) (int, error) {
		return 0, errors.New("device unavailable")
	})
	err := vm.Call(0, 1)
	assertErrorKind(t, err, "Runtime")
	var rerr *qerr.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected a *RuntimeError, got %T", err)
	}
	if rerr.Unwrap() == nil || rerr.Unwrap().Error() != "device unavailable" {
		t.Errorf("Expected the native failure as the cause, got %v", rerr.Unwrap())
	}
	if vm.Top() != 0 {
		t.Errorf("Expected a fully unwound stack, top=%d", vm.Top())
	}
}

func TestNative_QuokkaErrorPassesThrough(t *testing.T) {
	vm := NewWithChunk(hostChunk(callGlobal2("limit", bytecode.IntConstant(0), bytecode.IntConstant(0))))
	vm.DefineNativeFunction("limit", func(vm *VM) (int, error) {
		return 0, qerr.NewResourceError("quota exhausted")
	})
	err := vm.Call(0, 1)
	assertErrorKind(t, err, "Resource")
}

func TestNative_DirectHostCall(t *testing.T) {
	// A native can also be invoked straight from the host, no script frame
	// involved.
	vm := New()
	vm.DefineNativeFunction("double", func(vm *VM) (int, error) {
		vm.Push(Int(vm.Argument(1).AsInt() * 2))
		return 1, nil
	})
	vm.PushGlobal(Str("double"))
	vm.Push(Int(21))
	if err := vm.Call(1, 1); err != nil {
		t.Fatalf("Unexpected call error: %v", err)
	}
	if v := vm.Pop(); v.AsInt() != 42 {
		t.Errorf("Expected 42, got %s", v.Inspect())
	}
}
