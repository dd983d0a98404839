package bytecode

import (
	"encoding/binary"
)

// Signature and self-check constants for the precompiled chunk format.
// These match the output of the reference toolchain; a chunk carrying
// anything else is rejected before any function body is decoded.
const (
	Signature   = "\x1bLua"
	Version     = 0x53
	Format      = 0
	ReservedTag = "\x19\x93\r\n\x1a\n"

	// Sentinel values embedded in every header. They are decoded using the
	// widths and endianness the header itself declares; if the decoded
	// values do not come back exact, the declared architecture is lying.
	SentinelInt int64   = 0x5678
	SentinelNum float64 = 370.5
)

// Arch describes the machine that produced a chunk: its endianness and the
// byte widths of the five primitive kinds appearing in the stream. The
// reader honors these regardless of what the executing machine looks like.
type Arch struct {
	LittleEndian bool

	SizeInt         uint8 // C int
	SizeSizeT       uint8 // size_t
	SizeInstruction uint8 // instruction word
	SizeInteger     uint8 // integer constant
	SizeNumber      uint8 // float constant
}

// Common architecture profiles. Arch64LE is what the reference toolchain
// emits on a typical 64-bit desktop; Arch32LE matches small embedded
// targets; Arch64BE covers big-endian producers.
var (
	Arch64LE = Arch{LittleEndian: true, SizeInt: 4, SizeSizeT: 8, SizeInstruction: 4, SizeInteger: 8, SizeNumber: 8}
	Arch32LE = Arch{LittleEndian: true, SizeInt: 4, SizeSizeT: 4, SizeInstruction: 4, SizeInteger: 4, SizeNumber: 8}
	Arch64BE = Arch{LittleEndian: false, SizeInt: 4, SizeSizeT: 8, SizeInstruction: 4, SizeInteger: 8, SizeNumber: 8}
)

// HostArch returns the architecture profile of the running machine:
// the 64-bit widths with whichever endianness the host actually has.
func HostArch() Arch {
	a := Arch64LE
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	a.LittleEndian = probe[0] == 1
	return a
}

// ByteOrder returns the binary.ByteOrder matching the descriptor.
func (a Arch) ByteOrder() binary.ByteOrder {
	if a.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Valid reports whether every declared width is one the reader can decode.
func (a Arch) Valid() bool {
	ok := func(w uint8) bool { return w == 4 || w == 8 }
	return ok(a.SizeInt) && ok(a.SizeSizeT) && ok(a.SizeInstruction) &&
		ok(a.SizeInteger) && ok(a.SizeNumber)
}

// Header is the fixed preamble of a chunk. Version/Format are kept around
// even though only one combination is accepted, so tooling can report what
// an incompatible chunk claimed to be.
type Header struct {
	Version byte
	Format  byte
	Arch    Arch
}

// ConstTag identifies the encoding of one constant-pool entry. The high
// nibble is variant information (float vs integer, short vs long string);
// the low nibble is the base type.
type ConstTag byte

const (
	TagNil         ConstTag = 0x00
	TagBool        ConstTag = 0x01
	TagNumber      ConstTag = 0x03
	TagInteger     ConstTag = 0x13
	TagShortString ConstTag = 0x04
	TagLongString  ConstTag = 0x14
)

// Base strips the variant bits, leaving the base type.
func (t ConstTag) Base() ConstTag { return t & 0x0F }

// Constant is one tagged entry of a prototype's constant pool.
// Only the field matching Tag is meaningful.
type Constant struct {
	Tag  ConstTag
	Bool bool
	Int  int64
	Num  float64
	Str  string
}

// UpvalDesc describes where one captured variable of a prototype binds:
// either a register of the enclosing frame (InStack) or an upvalue of the
// enclosing closure.
type UpvalDesc struct {
	InStack bool
	Index   uint8
}

// Prototype is the static description of one compiled function. Nested
// prototypes are exclusively owned by their parent; the whole structure is
// an acyclic tree rooted at Chunk.Root.
type Prototype struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       uint8
	IsVararg        bool
	MaxStackSize    uint8

	Code      []Instruction
	Constants []Constant
	Upvalues  []UpvalDesc
	Protos    []*Prototype
}

// Chunk is a fully decoded binary chunk: the header it was validated
// against, the declared upvalue count of the root function (always 1 in
// practice, the environment), and the owned prototype tree.
type Chunk struct {
	Header    Header
	NumUpvals uint8
	Root      *Prototype
}
