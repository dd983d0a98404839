package bytecode

import (
	"testing"
)

func TestInstruction_CreateABC(t *testing.T) {
	ins := CreateABC(OpAdd, 3, 250, RKAsK(7))
	if ins.Opcode() != OpAdd {
		t.Errorf("Expected opcode ADD, got %s", ins.Opcode())
	}
	if ins.A() != 3 {
		t.Errorf("Expected A=3, got %d", ins.A())
	}
	if ins.B() != 250 {
		t.Errorf("Expected B=250, got %d", ins.B())
	}
	if !IsK(ins.C()) {
		t.Error("Expected C to carry the constant bit")
	}
	if KIndex(ins.C()) != 7 {
		t.Errorf("Expected C constant index 7, got %d", KIndex(ins.C()))
	}
}

func TestInstruction_CreateABx(t *testing.T) {
	ins := CreateABx(OpLoadK, 12, MaxArgBx)
	if ins.Opcode() != OpLoadK {
		t.Errorf("Expected opcode LOADK, got %s", ins.Opcode())
	}
	if ins.A() != 12 {
		t.Errorf("Expected A=12, got %d", ins.A())
	}
	if ins.Bx() != MaxArgBx {
		t.Errorf("Expected Bx=%d, got %d", MaxArgBx, ins.Bx())
	}
}

func TestInstruction_SignedBx(t *testing.T) {
	for _, sbx := range []int{0, 1, -1, 100, -100, MaxArgSBx, -MaxArgSBx} {
		ins := CreateAsBx(OpJmp, 0, sbx)
		if ins.SBx() != sbx {
			t.Errorf("sBx round trip failed: wrote %d, read %d", sbx, ins.SBx())
		}
	}
}

func TestInstruction_CreateAx(t *testing.T) {
	ins := CreateAx(OpExtraArg, MaxArgAx)
	if ins.Opcode() != OpExtraArg {
		t.Errorf("Expected opcode EXTRAARG, got %s", ins.Opcode())
	}
	if ins.Ax() != MaxArgAx {
		t.Errorf("Expected Ax=%d, got %d", MaxArgAx, ins.Ax())
	}
}

func TestInstruction_RKMarking(t *testing.T) {
	if IsK(5) {
		t.Error("Plain register operand must not read as a constant")
	}
	k := RKAsK(5)
	if !IsK(k) {
		t.Error("Marked operand must read as a constant")
	}
	if KIndex(k) != 5 {
		t.Errorf("Expected constant index 5, got %d", KIndex(k))
	}
}

func TestOpCode_Names(t *testing.T) {
	if OpMove.String() != "MOVE" {
		t.Errorf("Expected MOVE, got %s", OpMove.String())
	}
	if OpExtraArg.String() != "EXTRAARG" {
		t.Errorf("Expected EXTRAARG, got %s", OpExtraArg.String())
	}
	// Every defined opcode has a name.
	for op := OpCode(0); int(op) < NumOpcodes; op++ {
		if op.String() == "" {
			t.Errorf("Opcode %d has no name", op)
		}
	}
}
