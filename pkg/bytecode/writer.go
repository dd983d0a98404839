package bytecode

import (
	"io"
	"math"

	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// maxShortStringLen matches the reference toolchain's short-string cutoff.
const maxShortStringLen = 40

// Writer encodes a prototype tree as a binary chunk under a chosen
// architecture descriptor. It is the exact inverse of Reader, emitting the
// same widths and endianness the descriptor declares; decoding the output
// under any host reproduces the input tree bit for bit.
//
// The debug tables are emitted empty. The reader skips them anyway.
type Writer struct {
	w    io.Writer
	arch Arch
	buf  [8]byte
}

// NewWriter creates a Writer targeting the given architecture.
func NewWriter(w io.Writer, arch Arch) *Writer {
	return &Writer{w: w, arch: arch}
}

// WriteChunk emits a header for the target architecture followed by the
// root prototype.
func (wr *Writer) WriteChunk(c *Chunk) error {
	if !wr.arch.Valid() {
		return qerr.NewFormatError("cannot encode for invalid architecture")
	}
	if err := wr.writeHeader(); err != nil {
		return err
	}
	if err := wr.writeByte(c.NumUpvals); err != nil {
		return err
	}
	return wr.writeFunction(c.Root)
}

func (wr *Writer) writeHeader() error {
	if err := wr.writeBlock([]byte(Signature)); err != nil {
		return err
	}
	if err := wr.writeByte(Version); err != nil {
		return err
	}
	if err := wr.writeByte(Format); err != nil {
		return err
	}
	if err := wr.writeBlock([]byte(ReservedTag)); err != nil {
		return err
	}

	a := wr.arch
	little := byte(0)
	if a.LittleEndian {
		little = 1
	}
	if err := wr.writeBlock([]byte{little, a.SizeInt, a.SizeSizeT, a.SizeInstruction, a.SizeInteger, a.SizeNumber}); err != nil {
		return err
	}

	if err := wr.writeInteger(SentinelInt); err != nil {
		return err
	}
	return wr.writeNumber(SentinelNum)
}

func (wr *Writer) writeFunction(p *Prototype) error {
	if err := wr.writeString(p.Source); err != nil {
		return err
	}
	if err := wr.writeNativeInt(p.LineDefined); err != nil {
		return err
	}
	if err := wr.writeNativeInt(p.LastLineDefined); err != nil {
		return err
	}
	vararg := byte(0)
	if p.IsVararg {
		vararg = 1
	}
	if err := wr.writeBlock([]byte{p.NumParams, vararg, p.MaxStackSize}); err != nil {
		return err
	}

	if err := wr.writeNativeInt(len(p.Code)); err != nil {
		return err
	}
	for _, ins := range p.Code {
		if err := wr.writeInstruction(ins); err != nil {
			return err
		}
	}

	if err := wr.writeNativeInt(len(p.Constants)); err != nil {
		return err
	}
	for i := range p.Constants {
		if err := wr.writeConstant(&p.Constants[i]); err != nil {
			return err
		}
	}

	if err := wr.writeNativeInt(len(p.Upvalues)); err != nil {
		return err
	}
	for _, uv := range p.Upvalues {
		inStack := byte(0)
		if uv.InStack {
			inStack = 1
		}
		if err := wr.writeBlock([]byte{inStack, uv.Index}); err != nil {
			return err
		}
	}

	if err := wr.writeNativeInt(len(p.Protos)); err != nil {
		return err
	}
	for _, sub := range p.Protos {
		if err := wr.writeFunction(sub); err != nil {
			return err
		}
	}

	// Empty debug tables: no line info, no locals, no upvalue names.
	for i := 0; i < 3; i++ {
		if err := wr.writeNativeInt(0); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeConstant(k *Constant) error {
	if err := wr.writeByte(byte(k.Tag)); err != nil {
		return err
	}
	switch k.Tag {
	case TagNil:
		return nil
	case TagBool:
		b := byte(0)
		if k.Bool {
			b = 1
		}
		return wr.writeByte(b)
	case TagNumber:
		return wr.writeNumber(k.Num)
	case TagInteger:
		return wr.writeInteger(k.Int)
	case TagShortString, TagLongString:
		return wr.writeString(k.Str)
	default:
		return qerr.NewFormatError("cannot encode constant tag 0x%02x", byte(k.Tag))
	}
}

// --- Primitive writers ---

func (wr *Writer) writeByte(b byte) error {
	wr.buf[0] = b
	return wr.writeBlock(wr.buf[:1])
}

func (wr *Writer) writeBlock(data []byte) error {
	if _, err := wr.w.Write(data); err != nil {
		return qerr.NewFormatError("write failed").CausedBy(err)
	}
	return nil
}

func (wr *Writer) writeWord(v uint64, width uint8) error {
	order := wr.arch.ByteOrder()
	if width == 4 {
		order.PutUint32(wr.buf[:4], uint32(v))
	} else {
		order.PutUint64(wr.buf[:8], v)
	}
	return wr.writeBlock(wr.buf[:width])
}

func (wr *Writer) writeNativeInt(v int) error {
	if wr.arch.SizeInt == 4 && (v > math.MaxInt32 || v < math.MinInt32) {
		return qerr.NewFormatError("native int %d does not fit the target width", v)
	}
	return wr.writeWord(uint64(int64(v)), wr.arch.SizeInt)
}

func (wr *Writer) writeInstruction(ins Instruction) error {
	return wr.writeWord(uint64(ins), wr.arch.SizeInstruction)
}

func (wr *Writer) writeInteger(v int64) error {
	if wr.arch.SizeInteger == 4 && (v > math.MaxInt32 || v < math.MinInt32) {
		return qerr.NewFormatError("integer constant %d does not fit the target width", v)
	}
	return wr.writeWord(uint64(v), wr.arch.SizeInteger)
}

func (wr *Writer) writeNumber(v float64) error {
	if wr.arch.SizeNumber == 4 {
		return wr.writeWord(uint64(math.Float32bits(float32(v))), 4)
	}
	return wr.writeWord(math.Float64bits(v), 8)
}

func (wr *Writer) writeString(s string) error {
	if s == "" {
		return wr.writeByte(0)
	}
	size := uint64(len(s) + 1)
	if size < 0xFF {
		if err := wr.writeByte(byte(size)); err != nil {
			return err
		}
	} else {
		if err := wr.writeByte(0xFF); err != nil {
			return err
		}
		if wr.arch.SizeSizeT == 4 && size > math.MaxUint32 {
			return qerr.NewFormatError("string length %d does not fit the target size_t", size)
		}
		if err := wr.writeWord(size, wr.arch.SizeSizeT); err != nil {
			return err
		}
	}
	return wr.writeBlock([]byte(s))
}

// Constant constructors for hand-built prototype trees.

func NilConstant() Constant        { return Constant{Tag: TagNil} }
func BoolConstant(b bool) Constant { return Constant{Tag: TagBool, Bool: b} }
func IntConstant(i int64) Constant { return Constant{Tag: TagInteger, Int: i} }
func NumConstant(n float64) Constant {
	return Constant{Tag: TagNumber, Num: n}
}
func StringConstant(s string) Constant {
	tag := TagShortString
	if len(s) > maxShortStringLen {
		tag = TagLongString
	}
	return Constant{Tag: tag, Str: s}
}
