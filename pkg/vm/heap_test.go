package vm

import (
	"testing"
)

func TestHeap_SlotReuse(t *testing.T) {
	vm := New()

	a := vm.AllocTable()
	b := vm.AllocTable()
	if a.Slot() == b.Slot() {
		t.Fatal("Expected distinct slots for live objects")
	}

	// Freeing the lower slot makes it the first choice of the next alloc.
	vm.Release(a)
	c := vm.AllocTable()
	if c.Slot() != a.Slot() {
		t.Errorf("Expected the freed slot %d to be reused, got %d", a.Slot(), c.Slot())
	}
	vm.Release(b)
	vm.Release(c)
}

func TestHeap_RetainReleaseBalance(t *testing.T) {
	vm := New()

	v := vm.AllocTable()
	vm.Retain(v)
	vm.Release(v)
	if vm.objects.get(v.Slot()).refs != 1 {
		t.Errorf("Expected one outstanding reference, got %d", vm.objects.get(v.Slot()).refs)
	}
	vm.Release(v)
	if vm.objects.get(v.Slot()).refs != 0 {
		t.Error("Expected the slot to be free after the final release")
	}
}

func TestHeap_TableReleaseCascades(t *testing.T) {
	vm := New()

	outer := vm.AllocTable()
	inner := vm.AllocTable()
	vm.tableSet(vm.Object(outer).Table(), Str("child"), inner)
	// The entry now holds its own reference; drop ours.
	vm.Release(inner)
	if vm.objects.get(inner.Slot()).refs != 1 {
		t.Fatalf("Expected the table entry to keep the child alive, refs=%d", vm.objects.get(inner.Slot()).refs)
	}

	// Dropping the outer table must free the child too.
	vm.Release(outer)
	if vm.objects.get(inner.Slot()).refs != 0 {
		t.Errorf("Expected the child to be freed with its parent, refs=%d", vm.objects.get(inner.Slot()).refs)
	}
}

func TestHeap_NilStoreDropsEntryReferences(t *testing.T) {
	vm := New()

	tbl := vm.AllocTable()
	child := vm.AllocTable()
	vm.tableSet(vm.Object(tbl).Table(), Str("k"), child)
	vm.tableSet(vm.Object(tbl).Table(), Str("k"), Nil())
	if vm.objects.get(child.Slot()).refs != 1 {
		t.Errorf("Expected only our handle to remain, refs=%d", vm.objects.get(child.Slot()).refs)
	}
	vm.Release(child)
	vm.Release(tbl)
}

func TestHeap_ReleaseDeadSlotPanics(t *testing.T) {
	vm := New()
	v := vm.AllocTable()
	vm.Release(v)

	defer func() {
		if recover() == nil {
			t.Error("Expected a panic on double release")
		}
	}()
	vm.Release(v)
}

func TestHeap_StackPopTransfersOwnership(t *testing.T) {
	vm := New()

	tv := vm.AllocTable()
	vm.Push(tv)     // stack holds a second reference
	vm.Release(tv)  // drop ours; the stack keeps it alive
	got := vm.Pop() // ownership moves back to us
	if got.Slot() != tv.Slot() {
		t.Fatalf("Expected slot %d back, got %d", tv.Slot(), got.Slot())
	}
	if vm.objects.get(got.Slot()).refs != 1 {
		t.Errorf("Expected exactly our reference after pop, refs=%d", vm.objects.get(got.Slot()).refs)
	}
	vm.Release(got)
}
