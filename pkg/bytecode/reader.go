package bytecode

import (
	"io"
	"math"
	"strings"

	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// Reader decodes a precompiled chunk from a forward-readable byte stream.
// Every primitive read honors the width and endianness the chunk's own
// header declares, not the host's, so a chunk produced on a 32-bit
// big-endian controller decodes identically everywhere.
//
// Any short read or malformed field aborts the whole load with a
// FormatError; a partial chunk is never returned.
type Reader struct {
	r   io.Reader
	buf [8]byte
}

// NewReader wraps a byte stream for chunk decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadChunk validates the header and decodes the whole prototype tree.
func (rd *Reader) ReadChunk() (*Chunk, error) {
	header, err := rd.readHeader()
	if err != nil {
		return nil, err
	}
	nup, err := rd.readByte()
	if err != nil {
		return nil, err
	}
	root, err := rd.readFunction(header.Arch)
	if err != nil {
		return nil, err
	}
	return &Chunk{Header: header, NumUpvals: nup, Root: root}, nil
}

// readHeader decodes and validates the fixed preamble: signature, version,
// format, reserved block, architecture descriptor, and the two sentinel
// values cross-checked against what the declared architecture predicts.
func (rd *Reader) readHeader() (Header, error) {
	var h Header

	sig, err := rd.readBlock(len(Signature))
	if err != nil {
		return h, err
	}
	if string(sig) != Signature {
		return h, qerr.NewFormatError("bad signature: not a precompiled chunk")
	}

	if h.Version, err = rd.readByte(); err != nil {
		return h, err
	}
	if h.Version != Version {
		return h, qerr.NewFormatError("unsupported bytecode version 0x%02x (want 0x%02x)", h.Version, Version)
	}
	if h.Format, err = rd.readByte(); err != nil {
		return h, err
	}
	if h.Format != Format {
		return h, qerr.NewFormatError("unsupported bytecode format %d (want %d)", h.Format, Format)
	}

	reserved, err := rd.readBlock(len(ReservedTag))
	if err != nil {
		return h, err
	}
	if string(reserved) != ReservedTag {
		return h, qerr.NewFormatError("corrupted reserved block (chunk was text-mode mangled?)")
	}

	arch, err := rd.readArch()
	if err != nil {
		return h, err
	}
	h.Arch = arch

	// Self-check: the sentinels were written by the producer using the
	// architecture it declared. If they do not decode back exactly, the
	// descriptor is inconsistent with the actual encoding.
	si, err := rd.readInteger(arch)
	if err != nil {
		return h, err
	}
	if si != SentinelInt {
		return h, qerr.NewFormatError("integer sentinel mismatch: got 0x%x (want 0x%x)", si, SentinelInt)
	}
	sn, err := rd.readNumber(arch)
	if err != nil {
		return h, err
	}
	if sn != SentinelNum {
		return h, qerr.NewFormatError("float sentinel mismatch: got %v (want %v)", sn, SentinelNum)
	}

	return h, nil
}

func (rd *Reader) readArch() (Arch, error) {
	block, err := rd.readBlock(6)
	if err != nil {
		return Arch{}, err
	}
	a := Arch{
		LittleEndian:    block[0] != 0,
		SizeInt:         block[1],
		SizeSizeT:       block[2],
		SizeInstruction: block[3],
		SizeInteger:     block[4],
		SizeNumber:      block[5],
	}
	if !a.Valid() {
		return Arch{}, qerr.NewFormatError(
			"unsupported architecture widths int=%d size_t=%d instr=%d integer=%d number=%d",
			a.SizeInt, a.SizeSizeT, a.SizeInstruction, a.SizeInteger, a.SizeNumber)
	}
	return a, nil
}

// readFunction recursively decodes one prototype: scalar fields, the
// instruction array, the tagged constant pool, the upvalue descriptors,
// the nested prototypes, and finally the debug tables (consumed, dropped).
func (rd *Reader) readFunction(arch Arch) (*Prototype, error) {
	p := &Prototype{}

	var err error
	if p.Source, err = rd.readString(arch); err != nil {
		return nil, err
	}
	if p.LineDefined, err = rd.readNativeInt(arch); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = rd.readNativeInt(arch); err != nil {
		return nil, err
	}
	if p.NumParams, err = rd.readByte(); err != nil {
		return nil, err
	}
	vararg, err := rd.readByte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = vararg != 0
	if p.MaxStackSize, err = rd.readByte(); err != nil {
		return nil, err
	}

	if err = rd.readCode(arch, p); err != nil {
		return nil, err
	}
	if err = rd.readConstants(arch, p); err != nil {
		return nil, err
	}
	if err = rd.readUpvalues(arch, p); err != nil {
		return nil, err
	}
	if err = rd.readProtos(arch, p); err != nil {
		return nil, err
	}
	if err = rd.skipDebug(arch); err != nil {
		return nil, err
	}
	return p, nil
}

func (rd *Reader) readCount(arch Arch, what string) (int, error) {
	n, err := rd.readNativeInt(arch)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, qerr.NewFormatError("negative %s count %d", what, n)
	}
	return n, nil
}

func (rd *Reader) readCode(arch Arch, p *Prototype) error {
	n, err := rd.readCount(arch, "instruction")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		ins, err := rd.readInstruction(arch)
		if err != nil {
			return err
		}
		p.Code = append(p.Code, ins)
	}
	return nil
}

func (rd *Reader) readConstants(arch Arch, p *Prototype) error {
	n, err := rd.readCount(arch, "constant")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		tag, err := rd.readByte()
		if err != nil {
			return err
		}
		k := Constant{Tag: ConstTag(tag)}
		switch ConstTag(tag) {
		case TagNil:
			// no payload
		case TagBool:
			b, err := rd.readByte()
			if err != nil {
				return err
			}
			k.Bool = b != 0
		case TagNumber:
			if k.Num, err = rd.readNumber(arch); err != nil {
				return err
			}
		case TagInteger:
			if k.Int, err = rd.readInteger(arch); err != nil {
				return err
			}
		case TagShortString, TagLongString:
			if k.Str, err = rd.readString(arch); err != nil {
				return err
			}
		default:
			return qerr.NewFormatError("unknown constant tag 0x%02x", tag)
		}
		p.Constants = append(p.Constants, k)
	}
	return nil
}

func (rd *Reader) readUpvalues(arch Arch, p *Prototype) error {
	n, err := rd.readCount(arch, "upvalue")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		inStack, err := rd.readByte()
		if err != nil {
			return err
		}
		idx, err := rd.readByte()
		if err != nil {
			return err
		}
		p.Upvalues = append(p.Upvalues, UpvalDesc{InStack: inStack != 0, Index: idx})
	}
	return nil
}

func (rd *Reader) readProtos(arch Arch, p *Prototype) error {
	n, err := rd.readCount(arch, "prototype")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		sub, err := rd.readFunction(arch)
		if err != nil {
			return err
		}
		p.Protos = append(p.Protos, sub)
	}
	return nil
}

// skipDebug consumes the debug tables without interpreting them. They must
// still be well-formed: a truncated debug section means a truncated chunk.
func (rd *Reader) skipDebug(arch Arch) error {
	// Line info: one native int per instruction recorded.
	n, err := rd.readCount(arch, "line info")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := rd.readNativeInt(arch); err != nil {
			return err
		}
	}
	// Local variables: name + start pc + end pc.
	n, err = rd.readCount(arch, "local variable")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := rd.readString(arch); err != nil {
			return err
		}
		if _, err := rd.readNativeInt(arch); err != nil {
			return err
		}
		if _, err := rd.readNativeInt(arch); err != nil {
			return err
		}
	}
	// Upvalue names.
	n, err = rd.readCount(arch, "upvalue name")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := rd.readString(arch); err != nil {
			return err
		}
	}
	return nil
}

// --- Primitive readers ---

func (rd *Reader) readByte() (byte, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:1]); err != nil {
		return 0, truncated(err)
	}
	return rd.buf[0], nil
}

func (rd *Reader) readBlock(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rd.r, out); err != nil {
		return nil, truncated(err)
	}
	return out, nil
}

// readWord reads a width-byte unsigned word in the source endianness.
func (rd *Reader) readWord(arch Arch, width uint8) (uint64, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:width]); err != nil {
		return 0, truncated(err)
	}
	order := arch.ByteOrder()
	if width == 4 {
		return uint64(order.Uint32(rd.buf[:4])), nil
	}
	return order.Uint64(rd.buf[:8]), nil
}

func (rd *Reader) readNativeInt(arch Arch) (int, error) {
	w, err := rd.readWord(arch, arch.SizeInt)
	if err != nil {
		return 0, err
	}
	if arch.SizeInt == 4 {
		return int(int32(uint32(w))), nil
	}
	return int(int64(w)), nil
}

func (rd *Reader) readSizeT(arch Arch) (uint64, error) {
	return rd.readWord(arch, arch.SizeSizeT)
}

func (rd *Reader) readInstruction(arch Arch) (Instruction, error) {
	w, err := rd.readWord(arch, arch.SizeInstruction)
	if err != nil {
		return 0, err
	}
	if w > math.MaxUint32 {
		return 0, qerr.NewFormatError("instruction word 0x%x exceeds 32 bits", w)
	}
	return Instruction(w), nil
}

func (rd *Reader) readInteger(arch Arch) (int64, error) {
	w, err := rd.readWord(arch, arch.SizeInteger)
	if err != nil {
		return 0, err
	}
	if arch.SizeInteger == 4 {
		return int64(int32(uint32(w))), nil
	}
	return int64(w), nil
}

func (rd *Reader) readNumber(arch Arch) (float64, error) {
	w, err := rd.readWord(arch, arch.SizeNumber)
	if err != nil {
		return 0, err
	}
	if arch.SizeNumber == 4 {
		return float64(math.Float32frombits(uint32(w))), nil
	}
	return math.Float64frombits(w), nil
}

// stringReadBlock bounds how much a single string read allocates up front.
const stringReadBlock = 1 << 16

// readString decodes a length-prefixed string: one byte, or 0xFF followed
// by a full size_t when the length does not fit. Length 0 means the absent
// string; otherwise length-1 bytes follow.
func (rd *Reader) readString(arch Arch) (string, error) {
	b, err := rd.readByte()
	if err != nil {
		return "", err
	}
	size := uint64(b)
	if b == 0xFF {
		if size, err = rd.readSizeT(arch); err != nil {
			return "", err
		}
	}
	if size == 0 {
		return "", nil
	}
	remaining := size - 1
	if remaining > math.MaxInt {
		return "", qerr.NewFormatError("string length %d out of range", size)
	}
	// The declared length is untrusted: read in bounded pieces so a stream
	// claiming more bytes than it carries fails as truncated instead of
	// allocating the whole claim.
	var sb strings.Builder
	for remaining > 0 {
		n := remaining
		if n > stringReadBlock {
			n = stringReadBlock
		}
		block, err := rd.readBlock(int(n))
		if err != nil {
			return "", err
		}
		sb.Write(block)
		remaining -= n
	}
	return sb.String(), nil
}

// truncated folds stream errors into the format-error taxonomy.
func truncated(err error) error {
	return qerr.NewFormatError("truncated chunk").CausedBy(err)
}
