package vm

import (
	"math"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// arith evaluates a binary arithmetic opcode. Integer operands stay in the
// integer domain except for Div and Pow, which always produce floats.
// Strings that look like numbers participate through coercion.
func arith(op bytecode.OpCode, a, b Value) (Value, error) {
	if a.typ == TypeInt && b.typ == TypeInt {
		switch op {
		case bytecode.OpAdd:
			return Int(a.i + b.i), nil
		case bytecode.OpSub:
			return Int(a.i - b.i), nil
		case bytecode.OpMul:
			return Int(a.i * b.i), nil
		case bytecode.OpMod:
			if b.i == 0 {
				return Nil(), qerr.NewRuntimeError("attempt to perform 'n%%0'")
			}
			return Int(intMod(a.i, b.i)), nil
		case bytecode.OpIDiv:
			if b.i == 0 {
				return Nil(), qerr.NewRuntimeError("attempt to perform 'n//0'")
			}
			return Int(intFloorDiv(a.i, b.i)), nil
		}
	}

	fa, ok := a.CoerceNumber()
	if !ok {
		return Nil(), qerr.NewRuntimeError("attempt to perform arithmetic on a %s value", a.Type())
	}
	fb, ok := b.CoerceNumber()
	if !ok {
		return Nil(), qerr.NewRuntimeError("attempt to perform arithmetic on a %s value", b.Type())
	}

	switch op {
	case bytecode.OpAdd:
		return Float(fa + fb), nil
	case bytecode.OpSub:
		return Float(fa - fb), nil
	case bytecode.OpMul:
		return Float(fa * fb), nil
	case bytecode.OpMod:
		return Float(floatMod(fa, fb)), nil
	case bytecode.OpPow:
		return Float(math.Pow(fa, fb)), nil
	case bytecode.OpDiv:
		return Float(fa / fb), nil
	case bytecode.OpIDiv:
		return Float(math.Floor(fa / fb)), nil
	}
	return Nil(), qerr.NewRuntimeError("unexpected arithmetic opcode %d", uint8(op))
}

// bitwise evaluates a binary bitwise opcode over 64-bit integers. Floats
// participate only when they carry an exact integer value.
func bitwise(op bytecode.OpCode, a, b Value) (Value, error) {
	ia, ok := a.CoerceInteger()
	if !ok {
		return Nil(), qerr.NewRuntimeError("attempt to perform bitwise operation on a %s value", a.Type())
	}
	ib, ok := b.CoerceInteger()
	if !ok {
		return Nil(), qerr.NewRuntimeError("attempt to perform bitwise operation on a %s value", b.Type())
	}

	switch op {
	case bytecode.OpBAnd:
		return Int(ia & ib), nil
	case bytecode.OpBOr:
		return Int(ia | ib), nil
	case bytecode.OpBXor:
		return Int(ia ^ ib), nil
	case bytecode.OpShl:
		return Int(shiftLeft(ia, ib)), nil
	case bytecode.OpShr:
		return Int(shiftLeft(ia, -ib)), nil
	}
	return Nil(), qerr.NewRuntimeError("unexpected bitwise opcode %d", uint8(op))
}

// intMod is the floored modulo: the result takes the sign of the divisor.
func intMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// intFloorDiv rounds the quotient toward negative infinity.
func intFloorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// shiftLeft is the logical shift: negative counts shift right, counts of 64
// or more in either direction produce zero. No sign extension ever happens.
func shiftLeft(x, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(x) << uint(n))
	}
	return int64(uint64(x) >> uint(-n))
}
