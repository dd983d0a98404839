package bytecode

import (
	"github.com/fxamacker/cbor/v2"
)

// Structural export of a decoded chunk for external tooling. The shape is a
// plain tree with explicit field names; constants export only the field
// their tag selects.

type exportChunk struct {
	Version   byte        `cbor:"version"`
	Format    byte        `cbor:"format"`
	Arch      exportArch  `cbor:"arch"`
	NumUpvals uint8       `cbor:"num_upvalues"`
	Root      *exportFunc `cbor:"root"`
}

type exportArch struct {
	LittleEndian    bool  `cbor:"little_endian"`
	SizeInt         uint8 `cbor:"sizeof_int"`
	SizeSizeT       uint8 `cbor:"sizeof_size_t"`
	SizeInstruction uint8 `cbor:"sizeof_instruction"`
	SizeInteger     uint8 `cbor:"sizeof_integer"`
	SizeNumber      uint8 `cbor:"sizeof_number"`
}

type exportFunc struct {
	Source          string         `cbor:"source"`
	LineDefined     int            `cbor:"line_defined"`
	LastLineDefined int            `cbor:"last_line_defined"`
	NumParams       uint8          `cbor:"num_params"`
	IsVararg        bool           `cbor:"is_vararg"`
	MaxStackSize    uint8          `cbor:"max_stack_size"`
	Code            []uint32       `cbor:"code"`
	Constants       []exportConst  `cbor:"constants"`
	Upvalues        []exportUpval  `cbor:"upvalues"`
	Protos          []*exportFunc  `cbor:"protos"`
}

type exportConst struct {
	Tag  uint8       `cbor:"tag"`
	Data interface{} `cbor:"data,omitempty"`
}

type exportUpval struct {
	InStack bool  `cbor:"in_stack"`
	Index   uint8 `cbor:"index"`
}

// ExportCBOR serializes a decoded chunk as canonical CBOR. It is a one-way
// structural dump meant for external tools; the binary chunk format itself
// stays the only interchange format the VM consumes.
func ExportCBOR(c *Chunk) ([]byte, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	out := &exportChunk{
		Version:   c.Header.Version,
		Format:    c.Header.Format,
		NumUpvals: c.NumUpvals,
		Root:      exportPrototype(c.Root),
		Arch: exportArch{
			LittleEndian:    c.Header.Arch.LittleEndian,
			SizeInt:         c.Header.Arch.SizeInt,
			SizeSizeT:       c.Header.Arch.SizeSizeT,
			SizeInstruction: c.Header.Arch.SizeInstruction,
			SizeInteger:     c.Header.Arch.SizeInteger,
			SizeNumber:      c.Header.Arch.SizeNumber,
		},
	}
	return enc.Marshal(out)
}

func exportPrototype(p *Prototype) *exportFunc {
	if p == nil {
		return nil
	}
	f := &exportFunc{
		Source:          p.Source,
		LineDefined:     p.LineDefined,
		LastLineDefined: p.LastLineDefined,
		NumParams:       p.NumParams,
		IsVararg:        p.IsVararg,
		MaxStackSize:    p.MaxStackSize,
	}
	for _, ins := range p.Code {
		f.Code = append(f.Code, uint32(ins))
	}
	for i := range p.Constants {
		k := &p.Constants[i]
		ek := exportConst{Tag: uint8(k.Tag)}
		switch k.Tag {
		case TagBool:
			ek.Data = k.Bool
		case TagInteger:
			ek.Data = k.Int
		case TagNumber:
			ek.Data = k.Num
		case TagShortString, TagLongString:
			ek.Data = k.Str
		}
		f.Constants = append(f.Constants, ek)
	}
	for _, uv := range p.Upvalues {
		f.Upvalues = append(f.Upvalues, exportUpval{InStack: uv.InStack, Index: uv.Index})
	}
	for _, sub := range p.Protos {
		f.Protos = append(f.Protos, exportPrototype(sub))
	}
	return f
}
