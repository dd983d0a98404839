package bytecode

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	qerr "github.com/JacisNonsense/quokka-lua/pkg/errors"
)

// sampleChunk builds a two-level prototype tree touching every constant
// kind, both upvalue binding forms and a long string.
func sampleChunk(arch Arch) *Chunk {
	inner := &Prototype{
		Source:          "@counter.lua",
		LineDefined:     3,
		LastLineDefined: 6,
		NumParams:       1,
		MaxStackSize:    4,
		Code: []Instruction{
			CreateABC(OpGetUpval, 0, 0, 0),
			CreateABC(OpReturn, 0, 2, 0),
		},
		Constants: []Constant{IntConstant(1)},
		Upvalues:  []UpvalDesc{{InStack: true, Index: 0}},
	}
	root := &Prototype{
		Source:       "@counter.lua",
		IsVararg:     true,
		MaxStackSize: 6,
		Code: []Instruction{
			CreateABx(OpLoadK, 0, 0),
			CreateABx(OpClosure, 1, 0),
			CreateABC(OpReturn, 1, 2, 0),
		},
		Constants: []Constant{
			NilConstant(),
			BoolConstant(true),
			IntConstant(-42),
			NumConstant(370.5),
			StringConstant("hello"),
			StringConstant(strings.Repeat("x", 300)),
		},
		Upvalues: []UpvalDesc{{InStack: false, Index: 0}},
		Protos:   []*Prototype{inner},
	}
	return &Chunk{
		Header:    Header{Version: Version, Format: Format, Arch: arch},
		NumUpvals: 1,
		Root:      root,
	}
}

func encode(t *testing.T, c *Chunk, arch Arch) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter(&buf, arch).WriteChunk(c); err != nil {
		t.Fatalf("Unexpected encode error: %v", err)
	}
	return buf.Bytes()
}

func TestReader_RoundTrip(t *testing.T) {
	arches := map[string]Arch{
		"64-bit little-endian": Arch64LE,
		"32-bit little-endian": Arch32LE,
		"64-bit big-endian":    Arch64BE,
	}
	for name, arch := range arches {
		t.Run(name, func(t *testing.T) {
			want := sampleChunk(arch)
			data := encode(t, want, arch)

			got, err := NewReader(bytes.NewReader(data)).ReadChunk()
			if err != nil {
				t.Fatalf("Unexpected decode error: %v", err)
			}
			if got.Header.Arch != arch {
				t.Errorf("Decoded architecture %+v does not match %+v", got.Header.Arch, arch)
			}
			if got.NumUpvals != 1 {
				t.Errorf("Expected 1 root upvalue, got %d", got.NumUpvals)
			}
			if !reflect.DeepEqual(got.Root, want.Root) {
				t.Errorf("Prototype tree did not survive the round trip:\ngot  %+v\nwant %+v", got.Root, want.Root)
			}
		})
	}
}

func TestReader_CrossEndianIdentical(t *testing.T) {
	// The same tree encoded for both endiannesses must decode to the same
	// prototypes everywhere.
	le := encode(t, sampleChunk(Arch64LE), Arch64LE)
	be := encode(t, sampleChunk(Arch64BE), Arch64BE)

	fromLE, err := NewReader(bytes.NewReader(le)).ReadChunk()
	if err != nil {
		t.Fatalf("Unexpected decode error (LE): %v", err)
	}
	fromBE, err := NewReader(bytes.NewReader(be)).ReadChunk()
	if err != nil {
		t.Fatalf("Unexpected decode error (BE): %v", err)
	}
	if !reflect.DeepEqual(fromLE.Root, fromBE.Root) {
		t.Error("Expected identical prototype trees from both endiannesses")
	}
}

func TestReader_BadSignature(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	data[0] = 'X'
	_, err := NewReader(bytes.NewReader(data)).ReadChunk()
	assertFormatError(t, err)
}

func TestReader_BadVersion(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	data[4] = 0x52
	_, err := NewReader(bytes.NewReader(data)).ReadChunk()
	assertFormatError(t, err)
}

func TestReader_MangledReservedBlock(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	// Simulate a text-mode transfer eating the \r.
	data[8] = '\n'
	_, err := NewReader(bytes.NewReader(data)).ReadChunk()
	assertFormatError(t, err)
}

func TestReader_SentinelMismatch(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	// The endianness flag sits first in the architecture descriptor; lying
	// about it makes the sentinels decode to garbage.
	if data[12] != 1 {
		t.Fatal("Expected a little-endian flag at offset 12")
	}
	data[12] = 0
	_, err := NewReader(bytes.NewReader(data)).ReadChunk()
	assertFormatError(t, err)
}

func TestReader_BadWidth(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	data[13] = 3 // sizeof(int) can only be 4 or 8
	_, err := NewReader(bytes.NewReader(data)).ReadChunk()
	assertFormatError(t, err)
}

func TestReader_Truncation(t *testing.T) {
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	// Any prefix must fail cleanly, never return a partial chunk.
	for _, cut := range []int{0, 3, 4, 11, 17, 25, 40, len(data) / 2, len(data) - 1} {
		c, err := NewReader(bytes.NewReader(data[:cut])).ReadChunk()
		if err == nil {
			t.Errorf("Expected an error for a %d-byte prefix", cut)
		}
		if c != nil {
			t.Errorf("Expected no partial chunk for a %d-byte prefix", cut)
		}
	}
}

// corruptRootSourceLength rewrites the root source string's length prefix
// (the first byte after the 34-byte header and the upvalue count) into a
// long-form claim of the given size_t value.
func corruptRootSourceLength(t *testing.T, data []byte, claim uint64) []byte {
	t.Helper()
	if data[35] != byte(len("@counter.lua"))+1 {
		t.Fatal("Expected the root source length prefix at offset 35")
	}
	out := append([]byte{}, data[:35]...)
	out = append(out, 0xFF)
	var size [8]byte
	Arch64LE.ByteOrder().PutUint64(size[:], claim)
	return append(out, size[:]...)
}

func TestReader_AbsurdStringLength(t *testing.T) {
	// A string claiming more bytes than an int can count must be rejected,
	// not allocated.
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	evil := corruptRootSourceLength(t, data, ^uint64(0))
	c, err := NewReader(bytes.NewReader(evil)).ReadChunk()
	assertFormatError(t, err)
	if c != nil {
		t.Error("Expected no partial chunk")
	}
}

func TestReader_StringLengthBeyondStream(t *testing.T) {
	// A representable length the stream cannot back must surface as a
	// truncated chunk, even past the first read block.
	data := encode(t, sampleChunk(Arch64LE), Arch64LE)
	evil := corruptRootSourceLength(t, data, 1<<20)
	evil = append(evil, bytes.Repeat([]byte{'a'}, 70_000)...)
	c, err := NewReader(bytes.NewReader(evil)).ReadChunk()
	assertFormatError(t, err)
	if c != nil {
		t.Error("Expected no partial chunk")
	}
}

func TestWriter_IntegerTooWideFor32Bit(t *testing.T) {
	c := sampleChunk(Arch32LE)
	c.Root.Constants = append(c.Root.Constants, IntConstant(1<<40))
	var buf bytes.Buffer
	err := NewWriter(&buf, Arch32LE).WriteChunk(c)
	assertFormatError(t, err)
}

func TestWriter_RejectsUnknownConstantTag(t *testing.T) {
	c := sampleChunk(Arch64LE)
	c.Root.Constants = append(c.Root.Constants, Constant{Tag: 0x07})
	var buf bytes.Buffer
	err := NewWriter(&buf, Arch64LE).WriteChunk(c)
	assertFormatError(t, err)
}

func TestStringConstant_TagSelection(t *testing.T) {
	if StringConstant("short").Tag != TagShortString {
		t.Error("Expected a short string tag")
	}
	if StringConstant(strings.Repeat("y", 41)).Tag != TagLongString {
		t.Error("Expected a long string tag")
	}
}

func assertFormatError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected a format error, got nil")
	}
	qe, ok := err.(qerr.QuokkaError)
	if !ok {
		t.Fatalf("Expected a QuokkaError, got %T: %v", err, err)
	}
	if qe.Kind() != "Format" {
		t.Errorf("Expected kind Format, got %s", qe.Kind())
	}
}
