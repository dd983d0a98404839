package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Name returns a human-readable identifier for a prototype: "main" for the
// root of a chunk (line 0), otherwise source:line.
func (p *Prototype) Name() string {
	src := p.Source
	if src == "" {
		src = "?"
	}
	if p.LineDefined == 0 {
		return fmt.Sprintf("main <%s>", src)
	}
	return fmt.Sprintf("function <%s:%d>", src, p.LineDefined)
}

// Walk visits p and every nested prototype, parents before children.
func (p *Prototype) Walk(visit func(*Prototype)) {
	visit(p)
	for _, sub := range p.Protos {
		sub.Walk(visit)
	}
}

// Disassemble returns a human-readable listing of every function in the
// chunk, nested prototypes after their parent.
func (c *Chunk) Disassemble() string {
	var sb strings.Builder
	c.Root.Walk(func(p *Prototype) {
		sb.WriteString(p.disassemble())
		sb.WriteByte('\n')
	})
	return sb.String()
}

// Disassemble returns a human-readable listing of a single prototype.
func (p *Prototype) Disassemble() string {
	return p.disassemble()
}

func (p *Prototype) disassemble() string {
	var sb strings.Builder

	vararg := ""
	if p.IsVararg {
		vararg = "+"
	}
	fmt.Fprintf(&sb, "; === %s ===\n", p.Name())
	fmt.Fprintf(&sb, "; params: %d%s  registers: %d  upvalues: %d  constants: %d  functions: %d\n",
		p.NumParams, vararg, p.MaxStackSize, len(p.Upvalues), len(p.Constants), len(p.Protos))

	for pc, ins := range p.Code {
		fmt.Fprintf(&sb, "%4d\t%-10s\t%s\n", pc, ins.Opcode(), p.operands(pc, ins))
	}

	if len(p.Constants) > 0 {
		sb.WriteString("; constants:\n")
		for i := range p.Constants {
			fmt.Fprintf(&sb, ";   [%d] %s\n", i, formatConstant(&p.Constants[i]))
		}
	}
	return sb.String()
}

func (p *Prototype) operands(pc int, ins Instruction) string {
	op := ins.Opcode()
	var fields string
	switch opModes[op] {
	case modeABx:
		fields = fmt.Sprintf("%d %d", ins.A(), ins.Bx())
	case modeAsBx:
		fields = fmt.Sprintf("%d %d", ins.A(), ins.SBx())
	case modeAx:
		fields = fmt.Sprintf("%d", ins.Ax())
	default:
		fields = fmt.Sprintf("%d %d %d", ins.A(), ins.B(), ins.C())
	}
	if note := p.annotate(pc, ins); note != "" {
		fields += "\t; " + note
	}
	return fields
}

// annotate resolves constant operands and jump targets so a listing can be
// read without the constant table side by side.
func (p *Prototype) annotate(pc int, ins Instruction) string {
	kname := func(arg int) string {
		if !IsK(arg) {
			return ""
		}
		idx := KIndex(arg)
		if idx < len(p.Constants) {
			return formatConstant(&p.Constants[idx])
		}
		return fmt.Sprintf("K%d?", idx)
	}

	switch ins.Opcode() {
	case OpLoadK:
		if ins.Bx() < len(p.Constants) {
			return formatConstant(&p.Constants[ins.Bx()])
		}
	case OpClosure:
		if ins.Bx() < len(p.Protos) {
			return p.Protos[ins.Bx()].Name()
		}
	case OpJmp, OpForLoop, OpForPrep, OpTForLoop:
		return fmt.Sprintf("to %d", pc+1+ins.SBx())
	default:
		parts := []string{}
		if b := kname(ins.B()); b != "" {
			parts = append(parts, b)
		}
		if c := kname(ins.C()); c != "" {
			parts = append(parts, c)
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func formatConstant(k *Constant) string {
	switch k.Tag {
	case TagNil:
		return "nil"
	case TagBool:
		return strconv.FormatBool(k.Bool)
	case TagInteger:
		return strconv.FormatInt(k.Int, 10)
	case TagNumber:
		return strconv.FormatFloat(k.Num, 'g', 14, 64)
	case TagShortString, TagLongString:
		return strconv.Quote(k.Str)
	}
	return fmt.Sprintf("tag 0x%02x", byte(k.Tag))
}
