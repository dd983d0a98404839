package bytecode

import "fmt"

// Instruction is one 32-bit instruction word. Layout (low bit first):
//
//	iABC:  Op(6) A(8) C(9) B(9)
//	iABx:  Op(6) A(8) Bx(18)
//	iAsBx: Op(6) A(8) sBx(18, excess-K)
//	iAx:   Op(6) Ax(26)
type Instruction uint32

// OpCode defines the type for bytecode instructions.
type OpCode uint8

const (
	OpMove     OpCode = iota // A B: R(A) := R(B)
	OpLoadK                  // A Bx: R(A) := Kst(Bx)
	OpLoadKX                 // A: R(A) := Kst(extra arg), next instruction is EXTRAARG
	OpLoadBool               // A B C: R(A) := (bool)B; if C skip next instruction
	OpLoadNil                // A B: R(A..A+B) := nil
	OpGetUpval               // A B: R(A) := UpValue[B]
	OpGetTabUp               // A B C: R(A) := UpValue[B][RK(C)]
	OpGetTable               // A B C: R(A) := R(B)[RK(C)]
	OpSetTabUp               // A B C: UpValue[A][RK(B)] := RK(C)
	OpSetUpval               // A B: UpValue[B] := R(A)
	OpSetTable               // A B C: R(A)[RK(B)] := RK(C)
	OpNewTable               // A B C: R(A) := {}
	OpSelf                   // A B C: R(A+1) := R(B); R(A) := R(B)[RK(C)]
	OpAdd                    // A B C: R(A) := RK(B) + RK(C)
	OpSub                    // A B C: R(A) := RK(B) - RK(C)
	OpMul                    // A B C: R(A) := RK(B) * RK(C)
	OpMod                    // A B C: R(A) := RK(B) % RK(C)
	OpPow                    // A B C: R(A) := RK(B) ^ RK(C)
	OpDiv                    // A B C: R(A) := RK(B) / RK(C)
	OpIDiv                   // A B C: R(A) := RK(B) // RK(C)
	OpBAnd                   // A B C: R(A) := RK(B) & RK(C)
	OpBOr                    // A B C: R(A) := RK(B) | RK(C)
	OpBXor                   // A B C: R(A) := RK(B) ~ RK(C)
	OpShl                    // A B C: R(A) := RK(B) << RK(C)
	OpShr                    // A B C: R(A) := RK(B) >> RK(C)
	OpUnm                    // A B: R(A) := -R(B)
	OpBNot                   // A B: R(A) := ~R(B)
	OpNot                    // A B: R(A) := not R(B)
	OpLen                    // A B: R(A) := length of R(B)
	OpConcat                 // A B C: R(A) := R(B).. ... ..R(C)
	OpJmp                    // A sBx: pc += sBx; if A, close upvalues >= R(A-1)
	OpEq                     // A B C: if ((RK(B) == RK(C)) ~= A) then pc++
	OpLt                     // A B C: if ((RK(B) <  RK(C)) ~= A) then pc++
	OpLe                     // A B C: if ((RK(B) <= RK(C)) ~= A) then pc++
	OpTest                   // A C: if not (R(A) <=> C) then pc++
	OpTestSet                // A B C: if (R(B) <=> C) then R(A) := R(B) else pc++
	OpCall                   // A B C: R(A..A+C-2) := R(A)(R(A+1..A+B-1))
	OpTailCall               // A B C: return R(A)(R(A+1..A+B-1))
	OpReturn                 // A B: return R(A..A+B-2)
	OpForLoop                // A sBx: R(A) += R(A+2); if R(A) <?= R(A+1) { pc += sBx; R(A+3) := R(A) }
	OpForPrep                // A sBx: R(A) -= R(A+2); pc += sBx
	OpTForCall               // A C: R(A+3..A+2+C) := R(A)(R(A+1), R(A+2))
	OpTForLoop               // A sBx: if R(A+1) ~= nil { R(A) := R(A+1); pc += sBx }
	OpSetList                // A B C: R(A)[(C-1)*FPF+i] := R(A+i), 1 <= i <= B
	OpClosure                // A Bx: R(A) := closure(KPROTO[Bx])
	OpVararg                 // A B: R(A..A+B-2) := vararg
	OpExtraArg               // Ax: extra (larger) argument for previous opcode

	NumOpcodes = int(OpExtraArg) + 1
)

// Field sizes and positions within an instruction word.
const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC
	sizeAx = sizeA + sizeB + sizeC

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA
)

const (
	MaxArgA  = 1<<sizeA - 1
	MaxArgB  = 1<<sizeB - 1
	MaxArgC  = 1<<sizeC - 1
	MaxArgBx = 1<<sizeBx - 1
	MaxArgAx = 1<<sizeAx - 1

	// sBx is stored excess-MaxArgSBx.
	MaxArgSBx = MaxArgBx >> 1

	// BitRK marks a B/C operand as a constant-pool index rather than a
	// register index.
	BitRK = 1 << (sizeB - 1)

	// FieldsPerFlush is how many array entries one SETLIST moves.
	FieldsPerFlush = 50
)

func (i Instruction) Opcode() OpCode { return OpCode(i >> posOp & (1<<sizeOp - 1)) }
func (i Instruction) A() int         { return int(i >> posA & (1<<sizeA - 1)) }
func (i Instruction) B() int         { return int(i >> posB & (1<<sizeB - 1)) }
func (i Instruction) C() int         { return int(i >> posC & (1<<sizeC - 1)) }
func (i Instruction) Bx() int        { return int(i >> posBx & (1<<sizeBx - 1)) }
func (i Instruction) SBx() int       { return i.Bx() - MaxArgSBx }
func (i Instruction) Ax() int        { return int(i >> posAx & (1<<sizeAx - 1)) }

// IsK reports whether a B/C operand refers to the constant pool.
func IsK(arg int) bool { return arg&BitRK != 0 }

// KIndex converts a constant-marked operand to its constant-pool index.
func KIndex(arg int) int { return arg &^ BitRK }

// RKAsK marks a constant-pool index as an RK operand.
func RKAsK(idx int) int { return idx | BitRK }

// Instruction constructors, used by the writer, the disassembler tests and
// anything hand-assembling chunks.

func CreateABC(op OpCode, a, b, c int) Instruction {
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(b)<<posB |
		Instruction(c)<<posC
}

func CreateABx(op OpCode, a, bx int) Instruction {
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(bx)<<posBx
}

func CreateAsBx(op OpCode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+MaxArgSBx)
}

func CreateAx(op OpCode, ax int) Instruction {
	return Instruction(op)<<posOp | Instruction(ax)<<posAx
}

var opNames = [NumOpcodes]string{
	"MOVE", "LOADK", "LOADKX", "LOADBOOL", "LOADNIL",
	"GETUPVAL", "GETTABUP", "GETTABLE", "SETTABUP", "SETUPVAL",
	"SETTABLE", "NEWTABLE", "SELF",
	"ADD", "SUB", "MUL", "MOD", "POW", "DIV", "IDIV",
	"BAND", "BOR", "BXOR", "SHL", "SHR",
	"UNM", "BNOT", "NOT", "LEN", "CONCAT",
	"JMP", "EQ", "LT", "LE", "TEST", "TESTSET",
	"CALL", "TAILCALL", "RETURN",
	"FORLOOP", "FORPREP", "TFORCALL", "TFORLOOP",
	"SETLIST", "CLOSURE", "VARARG", "EXTRAARG",
}

// String returns a human-readable name for the opcode.
func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", uint8(op))
}

// opMode describes how an opcode's operands are packed.
type opMode uint8

const (
	modeABC opMode = iota
	modeABx
	modeAsBx
	modeAx
)

var opModes = [NumOpcodes]opMode{
	OpMove:     modeABC,
	OpLoadK:    modeABx,
	OpLoadKX:   modeABx,
	OpLoadBool: modeABC,
	OpLoadNil:  modeABC,
	OpGetUpval: modeABC,
	OpGetTabUp: modeABC,
	OpGetTable: modeABC,
	OpSetTabUp: modeABC,
	OpSetUpval: modeABC,
	OpSetTable: modeABC,
	OpNewTable: modeABC,
	OpSelf:     modeABC,
	OpAdd:      modeABC,
	OpSub:      modeABC,
	OpMul:      modeABC,
	OpMod:      modeABC,
	OpPow:      modeABC,
	OpDiv:      modeABC,
	OpIDiv:     modeABC,
	OpBAnd:     modeABC,
	OpBOr:      modeABC,
	OpBXor:     modeABC,
	OpShl:      modeABC,
	OpShr:      modeABC,
	OpUnm:      modeABC,
	OpBNot:     modeABC,
	OpNot:      modeABC,
	OpLen:      modeABC,
	OpConcat:   modeABC,
	OpJmp:      modeAsBx,
	OpEq:       modeABC,
	OpLt:       modeABC,
	OpLe:       modeABC,
	OpTest:     modeABC,
	OpTestSet:  modeABC,
	OpCall:     modeABC,
	OpTailCall: modeABC,
	OpReturn:   modeABC,
	OpForLoop:  modeAsBx,
	OpForPrep:  modeAsBx,
	OpTForCall: modeABC,
	OpTForLoop: modeAsBx,
	OpSetList:  modeABC,
	OpClosure:  modeABx,
	OpVararg:   modeABC,
	OpExtraArg: modeAx,
}
