package vm

import (
	"math"
	"strings"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// constValue materializes a constant-pool entry as a Value. Strings stay
// inline in the Value; no heap allocation happens here.
func constValue(k *bytecode.Constant) Value {
	switch k.Tag {
	case bytecode.TagBool:
		return Bool(k.Bool)
	case bytecode.TagInteger:
		return Int(k.Int)
	case bytecode.TagNumber:
		return Float(k.Num)
	case bytecode.TagShortString, bytecode.TagLongString:
		return Str(k.Str)
	}
	return Nil()
}

// rk resolves an RK operand: a register of the current frame or a
// constant-pool entry.
func (vm *VM) rk(proto *bytecode.Prototype, base, arg int) Value {
	if bytecode.IsK(arg) {
		return constValue(&proto.Constants[bytecode.KIndex(arg)])
	}
	return vm.registers[base+arg]
}

// index reads t[k]; t must be a table value.
func (vm *VM) index(t, k Value) (Value, error) {
	if !t.IsObject() {
		return Nil(), qerr.NewRuntimeError("attempt to index a %s value", t.Type())
	}
	o := vm.objects.get(t.obj)
	if !o.IsTable() {
		return Nil(), qerr.NewRuntimeError("attempt to index a non-table object")
	}
	return o.table.Get(k), nil
}

// setIndex writes t[k] = v; t must be a table value and k must not be nil.
func (vm *VM) setIndex(t, k, v Value) error {
	if !t.IsObject() {
		return qerr.NewRuntimeError("attempt to index a %s value", t.Type())
	}
	o := vm.objects.get(t.obj)
	if !o.IsTable() {
		return qerr.NewRuntimeError("attempt to index a non-table object")
	}
	if k.IsNil() {
		return qerr.NewRuntimeError("table index is nil")
	}
	vm.tableSet(o.table, k, v)
	return nil
}

// execute dispatches instructions for the topmost script frame until the
// activation that entered from the host (statusFresh) returns.
func (vm *VM) execute() error {
frame:
	for {
		ci := vm.current()
		cl := vm.objects.get(vm.registers[ci.funcIdx].obj).closure
		proto := cl.Proto
		base := ci.base

		for {
			if ci.pc < 0 || ci.pc >= len(proto.Code) {
				return qerr.NewRuntimeError("program counter out of range (malformed chunk?)")
			}
			ins := proto.Code[ci.pc]
			ci.pc++
			ra := base + ins.A()

			switch ins.Opcode() {
			case bytecode.OpMove:
				vm.setReg(ra, vm.registers[base+ins.B()])

			case bytecode.OpLoadK:
				vm.setReg(ra, constValue(&proto.Constants[ins.Bx()]))

			case bytecode.OpLoadKX:
				extra := proto.Code[ci.pc].Ax()
				ci.pc++
				vm.setReg(ra, constValue(&proto.Constants[extra]))

			case bytecode.OpLoadBool:
				vm.setReg(ra, Bool(ins.B() != 0))
				if ins.C() != 0 {
					ci.pc++
				}

			case bytecode.OpLoadNil:
				for i := 0; i <= ins.B(); i++ {
					vm.setReg(ra+i, Nil())
				}

			case bytecode.OpGetUpval:
				vm.setReg(ra, vm.upvalGet(cl, ins.B()))

			case bytecode.OpSetUpval:
				vm.upvalSet(cl, ins.B(), vm.registers[ra])

			case bytecode.OpGetTabUp:
				v, err := vm.index(vm.upvalGet(cl, ins.B()), vm.rk(proto, base, ins.C()))
				if err != nil {
					return err
				}
				vm.setReg(ra, v)

			case bytecode.OpGetTable:
				v, err := vm.index(vm.registers[base+ins.B()], vm.rk(proto, base, ins.C()))
				if err != nil {
					return err
				}
				vm.setReg(ra, v)

			case bytecode.OpSetTabUp:
				t := vm.upvalGet(cl, ins.A())
				if err := vm.setIndex(t, vm.rk(proto, base, ins.B()), vm.rk(proto, base, ins.C())); err != nil {
					return err
				}

			case bytecode.OpSetTable:
				if err := vm.setIndex(vm.registers[ra], vm.rk(proto, base, ins.B()), vm.rk(proto, base, ins.C())); err != nil {
					return err
				}

			case bytecode.OpNewTable:
				vm.setRegOwned(ra, vm.AllocTable())

			case bytecode.OpSelf:
				obj := vm.registers[base+ins.B()]
				vm.setReg(ra+1, obj)
				v, err := vm.index(obj, vm.rk(proto, base, ins.C()))
				if err != nil {
					return err
				}
				vm.setReg(ra, v)

			case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpMod,
				bytecode.OpPow, bytecode.OpDiv, bytecode.OpIDiv:
				v, err := arith(ins.Opcode(), vm.rk(proto, base, ins.B()), vm.rk(proto, base, ins.C()))
				if err != nil {
					return err
				}
				vm.setReg(ra, v)

			case bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor,
				bytecode.OpShl, bytecode.OpShr:
				v, err := bitwise(ins.Opcode(), vm.rk(proto, base, ins.B()), vm.rk(proto, base, ins.C()))
				if err != nil {
					return err
				}
				vm.setReg(ra, v)

			case bytecode.OpUnm:
				rb := vm.registers[base+ins.B()]
				if rb.typ == TypeInt {
					vm.setReg(ra, Int(-rb.i))
				} else if n, ok := rb.CoerceNumber(); ok {
					vm.setReg(ra, Float(-n))
				} else {
					return qerr.NewRuntimeError("attempt to perform arithmetic on a %s value", rb.Type())
				}

			case bytecode.OpBNot:
				rb := vm.registers[base+ins.B()]
				i, ok := rb.CoerceInteger()
				if !ok {
					return qerr.NewRuntimeError("attempt to perform bitwise operation on a %s value", rb.Type())
				}
				vm.setReg(ra, Int(^i))

			case bytecode.OpNot:
				vm.setReg(ra, Bool(!vm.registers[base+ins.B()].Truthy()))

			case bytecode.OpLen:
				rb := vm.registers[base+ins.B()]
				switch {
				case rb.typ == TypeString:
					vm.setReg(ra, Int(int64(len(rb.s))))
				case rb.IsObject() && vm.objects.get(rb.obj).IsTable():
					vm.setReg(ra, Int(vm.objects.get(rb.obj).table.Len()))
				default:
					return qerr.NewRuntimeError("attempt to get length of a %s value", rb.Type())
				}

			case bytecode.OpConcat:
				var sb strings.Builder
				for i := base + ins.B(); i <= base+ins.C(); i++ {
					v := vm.registers[i]
					if v.typ != TypeString && !v.IsNumber() {
						return qerr.NewRuntimeError("attempt to concatenate a %s value", v.Type())
					}
					s, _ := v.CoerceString()
					sb.WriteString(s)
				}
				vm.setReg(ra, Str(sb.String()))

			case bytecode.OpJmp:
				if a := ins.A(); a != 0 {
					vm.closeUpvals(base + a - 1)
				}
				ci.pc += ins.SBx()

			case bytecode.OpEq:
				cond := vm.rk(proto, base, ins.B()).Equals(vm.rk(proto, base, ins.C()))
				if cond != (ins.A() != 0) {
					ci.pc++ // skip the paired JMP
				}

			case bytecode.OpLt:
				cond := vm.rk(proto, base, ins.B()).Less(vm.rk(proto, base, ins.C()))
				if cond != (ins.A() != 0) {
					ci.pc++
				}

			case bytecode.OpLe:
				cond := vm.rk(proto, base, ins.B()).LessEqual(vm.rk(proto, base, ins.C()))
				if cond != (ins.A() != 0) {
					ci.pc++
				}

			case bytecode.OpTest:
				if vm.registers[ra].Truthy() != (ins.C() != 0) {
					ci.pc++
				}

			case bytecode.OpTestSet:
				rb := vm.registers[base+ins.B()]
				if rb.Truthy() != (ins.C() != 0) {
					ci.pc++
				} else {
					vm.setReg(ra, rb)
				}

			case bytecode.OpCall:
				if b := ins.B(); b != 0 {
					vm.setTop(ra + b)
				}
				nresults := ins.C() - 1
				isNative, err := vm.precall(ra, nresults)
				if err != nil {
					return err
				}
				if isNative && ins.C() != 0 {
					vm.setTop(base + int(proto.MaxStackSize))
				}
				continue frame

			case bytecode.OpTailCall:
				if b := ins.B(); b != 0 {
					vm.setTop(ra + b)
				}
				callee := vm.registers[ra]
				if callee.IsObject() && vm.objects.get(callee.obj).kind == objNative {
					// Native tail call: run it like a plain call producing
					// all results; the RETURN that follows hands them on.
					if _, err := vm.precall(ra, MultRet); err != nil {
						return err
					}
					continue frame
				}

				// Script tail call: the callee reuses this activation
				// record instead of pushing a new one, keeping call-info
				// depth constant for tail-recursive loops.
				vm.closeUpvals(base)
				ofunc := ci.funcIdx
				n := vm.top - ra
				for i := 0; i < n; i++ {
					vm.moveReg(ofunc+i, ra+i)
				}
				vm.setTop(ofunc + n)

				wanted := ci.nresults
				fresh := ci.status & statusFresh
				vm.callinfo = vm.callinfo[:len(vm.callinfo)-1]

				isNative, err := vm.precall(ofunc, wanted)
				if err != nil {
					return err
				}
				if isNative {
					// Only reachable if the callee was not callable as a
					// script function after all; precall has reported.
					continue frame
				}
				nci := vm.current()
				nci.status |= statusTail | fresh
				continue frame

			case bytecode.OpReturn:
				vm.closeUpvals(base)
				b := ins.B()
				nproduced := b - 1
				if b == 0 {
					nproduced = vm.top - ra
				}
				fresh := ci.status&statusFresh != 0
				wanted := ci.nresults
				vm.postcall(ra, nproduced)
				if fresh {
					return nil
				}
				if wanted != MultRet {
					caller := vm.current()
					callerProto := vm.objects.get(vm.registers[caller.funcIdx].obj).closure.Proto
					vm.setTop(caller.base + int(callerProto.MaxStackSize))
				}
				continue frame

			case bytecode.OpForLoop:
				done, err := vm.forLoop(ra)
				if err != nil {
					return err
				}
				if !done {
					ci.pc += ins.SBx()
				}

			case bytecode.OpForPrep:
				if err := vm.forPrep(ra); err != nil {
					return err
				}
				ci.pc += ins.SBx()

			case bytecode.OpTForCall:
				cb := ra + 3
				vm.setTop(cb + 3)
				vm.setReg(cb+2, vm.registers[ra+2])
				vm.setReg(cb+1, vm.registers[ra+1])
				vm.setReg(cb, vm.registers[ra])
				isNative, err := vm.precall(cb, ins.C())
				if err != nil {
					return err
				}
				if isNative {
					vm.setTop(base + int(proto.MaxStackSize))
				}
				continue frame

			case bytecode.OpTForLoop:
				if !vm.registers[ra+1].IsNil() {
					vm.setReg(ra, vm.registers[ra+1])
					ci.pc += ins.SBx()
				}

			case bytecode.OpSetList:
				n := ins.B()
				if n == 0 {
					n = vm.top - ra - 1
				}
				c := ins.C()
				if c == 0 {
					c = proto.Code[ci.pc].Ax()
					ci.pc++
				}
				tv := vm.registers[ra]
				if !tv.IsObject() || !vm.objects.get(tv.obj).IsTable() {
					return qerr.NewRuntimeError("attempt to set list items on a %s value", tv.Type())
				}
				t := vm.objects.get(tv.obj).table
				first := int64(c-1) * bytecode.FieldsPerFlush
				for i := 1; i <= n; i++ {
					vm.tableSet(t, Int(first+int64(i)), vm.registers[ra+i])
				}
				if ins.B() == 0 {
					vm.setTop(base + int(proto.MaxStackSize))
				}

			case bytecode.OpClosure:
				slot := vm.makeClosure(proto.Protos[ins.Bx()], base, cl)
				vm.setRegOwned(ra, ObjectRef(slot))

			case bytecode.OpVararg:
				np := int(proto.NumParams)
				avail := ci.base - ci.funcIdx - np - 1
				if avail < 0 {
					avail = 0
				}
				src := ci.funcIdx + 1 + np
				b := ins.B()
				if b == 0 {
					vm.setTop(ra + avail)
					for i := 0; i < avail; i++ {
						vm.setReg(ra+i, vm.registers[src+i])
					}
				} else {
					for i := 0; i < b-1; i++ {
						if i < avail {
							vm.setReg(ra+i, vm.registers[src+i])
						} else {
							vm.setReg(ra+i, Nil())
						}
					}
				}

			case bytecode.OpExtraArg:
				// Always consumed by the preceding instruction.
				return qerr.NewRuntimeError("stray EXTRAARG (malformed chunk?)")

			default:
				return qerr.NewRuntimeError("unknown opcode %d", uint8(ins.Opcode()))
			}
		}
	}
}

// forPrep validates and primes a numeric for loop: the control register is
// biased down one step so the first FORLOOP brings it to the initial value.
func (vm *VM) forPrep(ra int) error {
	init := vm.registers[ra]
	limit := vm.registers[ra+1]
	step := vm.registers[ra+2]

	if init.typ == TypeInt && step.typ == TypeInt {
		if step.i == 0 {
			return qerr.NewRuntimeError("'for' step is zero")
		}
		if ilimit, ok := intForLimit(limit, step.i); ok {
			vm.setReg(ra, Int(init.i-step.i))
			vm.setReg(ra+1, Int(ilimit))
			return nil
		}
	}

	fi, ok1 := init.CoerceNumber()
	fl, ok2 := limit.CoerceNumber()
	fs, ok3 := step.CoerceNumber()
	if !ok1 {
		return qerr.NewRuntimeError("'for' initial value must be a number")
	}
	if !ok2 {
		return qerr.NewRuntimeError("'for' limit must be a number")
	}
	if !ok3 {
		return qerr.NewRuntimeError("'for' step must be a number")
	}
	if fs == 0 {
		return qerr.NewRuntimeError("'for' step is zero")
	}
	vm.setReg(ra, Float(fi-fs))
	vm.setReg(ra+1, Float(fl))
	vm.setReg(ra+2, Float(fs))
	return nil
}

// forLoop advances a numeric for loop, reporting done=true when the loop
// must terminate. Integer loops detect wraparound instead of running
// forever.
func (vm *VM) forLoop(ra int) (done bool, err error) {
	ctrl := vm.registers[ra]
	if ctrl.typ == TypeInt {
		step := vm.registers[ra+2].i
		limit := vm.registers[ra+1].i
		idx := ctrl.i + step
		if step > 0 && idx < ctrl.i || step < 0 && idx > ctrl.i {
			return true, nil // overflow: loop is exhausted
		}
		if step > 0 && idx > limit || step < 0 && idx < limit {
			return true, nil
		}
		vm.setReg(ra, Int(idx))
		vm.setReg(ra+3, Int(idx))
		return false, nil
	}

	step := vm.registers[ra+2].n
	limit := vm.registers[ra+1].n
	idx := ctrl.n + step
	if step > 0 && idx > limit || step <= 0 && idx < limit {
		return true, nil
	}
	vm.setReg(ra, Float(idx))
	vm.setReg(ra+3, Float(idx))
	return false, nil
}

// intForLimit converts a loop limit to an integer bound, flooring or
// ceiling a float limit toward the iteration direction and saturating out
// of range values.
func intForLimit(limit Value, step int64) (int64, bool) {
	switch limit.typ {
	case TypeInt:
		return limit.i, true
	case TypeFloat:
		f := limit.n
		if step > 0 {
			if f >= 9.2233720368547758e18 {
				return math.MaxInt64, true
			}
			return int64(math.Floor(f)), true
		}
		if f <= -9.2233720368547758e18 {
			return math.MinInt64, true
		}
		return int64(math.Ceil(f)), true
	case TypeString:
		if i, ok := limit.CoerceInteger(); ok {
			return i, true
		}
	}
	return 0, false
}
