package stdlib

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JacisNonsense/quokka-lua/pkg/vm"
)

// callGlobal invokes a registered native straight from the host.
func callGlobal(t *testing.T, m *vm.VM, name string, args ...vm.Value) vm.Value {
	t.Helper()
	m.PushGlobal(vm.Str(name))
	for _, a := range args {
		m.Push(a)
	}
	if err := m.Call(len(args), 1); err != nil {
		t.Fatalf("Unexpected error calling %s: %v", name, err)
	}
	return m.Pop()
}

func TestStdlib_Print(t *testing.T) {
	m := vm.New()
	lib := Install(m)
	var buf bytes.Buffer
	lib.Out = &buf

	m.PushGlobal(vm.Str("print"))
	m.Push(vm.Str("answer"))
	m.Push(vm.Int(42))
	m.Push(vm.Nil())
	if err := m.Call(3, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := buf.String(); got != "answer\t42\tnil\n" {
		t.Errorf("Expected tab-joined output, got %q", got)
	}
}

func TestStdlib_Type(t *testing.T) {
	m := vm.New()
	Install(m)

	if v := callGlobal(t, m, "type", vm.Int(1)); v.AsString() != "number" {
		t.Errorf("Expected 'number', got %s", v.Inspect())
	}
	if v := callGlobal(t, m, "type", vm.Str("x")); v.AsString() != "string" {
		t.Errorf("Expected 'string', got %s", v.Inspect())
	}
	tbl := m.AllocTable()
	if v := callGlobal(t, m, "type", tbl); v.AsString() != "table" {
		t.Errorf("Expected 'table', got %s", v.Inspect())
	}
	m.Release(tbl)
	if v := callGlobal(t, m, "type"); v.AsString() != "nil" {
		t.Errorf("Expected 'nil' for a missing argument, got %s", v.Inspect())
	}
}

func TestStdlib_ToNumber(t *testing.T) {
	m := vm.New()
	Install(m)

	if v := callGlobal(t, m, "tonumber", vm.Str("42")); v.Type() != vm.TypeInt || v.AsInt() != 42 {
		t.Errorf("Expected integer 42, got %s", v.Inspect())
	}
	if v := callGlobal(t, m, "tonumber", vm.Str("2.5")); v.Type() != vm.TypeFloat || v.AsFloat() != 2.5 {
		t.Errorf("Expected float 2.5, got %s", v.Inspect())
	}
	if v := callGlobal(t, m, "tonumber", vm.Str("junk")); !v.IsNil() {
		t.Errorf("Expected nil for a non-number, got %s", v.Inspect())
	}
}

func TestStdlib_Match(t *testing.T) {
	m := vm.New()
	Install(m)

	if v := callGlobal(t, m, "match", vm.Str("version 5.3 ready"), vm.Str(`\d+\.\d+`)); v.AsString() != "5.3" {
		t.Errorf("Expected '5.3', got %s", v.Inspect())
	}
	if v := callGlobal(t, m, "match", vm.Str("no digits"), vm.Str(`\d+`)); !v.IsNil() {
		t.Errorf("Expected nil for no match, got %s", v.Inspect())
	}

	// A malformed pattern surfaces as a call error, not a crash.
	m.PushGlobal(vm.Str("match"))
	m.Push(vm.Str("s"))
	m.Push(vm.Str("(unclosed"))
	if err := m.Call(2, 1); err == nil {
		t.Error("Expected an error for a malformed pattern")
	} else if !strings.Contains(err.Error(), "bad pattern") {
		t.Errorf("Expected a pattern error, got %v", err)
	}
}

func TestStdlib_Clock(t *testing.T) {
	m := vm.New()
	Install(m)
	v := callGlobal(t, m, "clock")
	if v.Type() != vm.TypeFloat || v.AsFloat() < 0 {
		t.Errorf("Expected a non-negative float, got %s", v.Inspect())
	}
}
