package bytecode

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestDisassemble_ListsEveryFunction(t *testing.T) {
	c := sampleChunk(Arch64LE)
	out := c.Disassemble()

	if !strings.Contains(out, "main <@counter.lua>") {
		t.Error("Expected the root function header in the listing")
	}
	if !strings.Contains(out, "function <@counter.lua:3>") {
		t.Error("Expected the nested function header in the listing")
	}
	for _, op := range []string{"LOADK", "CLOSURE", "RETURN", "GETUPVAL"} {
		if !strings.Contains(out, op) {
			t.Errorf("Expected opcode %s in the listing", op)
		}
	}
	// Constant annotations resolve inline.
	if !strings.Contains(out, "\"hello\"") {
		t.Error("Expected the string constant to be annotated")
	}
}

func TestDisassemble_JumpTargets(t *testing.T) {
	p := &Prototype{
		Source:       "@jump.lua",
		MaxStackSize: 2,
		Code: []Instruction{
			CreateAsBx(OpJmp, 0, 2),
			CreateABC(OpReturn, 0, 1, 0),
		},
	}
	out := p.Disassemble()
	if !strings.Contains(out, "to 3") {
		t.Errorf("Expected the jump target annotation, got:\n%s", out)
	}
}

func TestWalk_VisitsParentsFirst(t *testing.T) {
	c := sampleChunk(Arch64LE)
	var order []string
	c.Root.Walk(func(p *Prototype) {
		order = append(order, p.Name())
	})
	if len(order) != 2 {
		t.Fatalf("Expected 2 prototypes, got %d", len(order))
	}
	if !strings.HasPrefix(order[0], "main") {
		t.Errorf("Expected the root first, got %s", order[0])
	}
}

func TestExportCBOR_RoundTrip(t *testing.T) {
	c := sampleChunk(Arch64LE)
	data, err := ExportCBOR(c)
	if err != nil {
		t.Fatalf("Unexpected export error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Expected a non-empty CBOR document")
	}

	var got exportChunk
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("Exported document does not decode: %v", err)
	}
	if got.Version != Version || got.Format != Format {
		t.Errorf("Expected version/format %#x/%d, got %#x/%d", Version, Format, got.Version, got.Format)
	}
	if got.Root == nil {
		t.Fatal("Expected a root function in the export")
	}
	if len(got.Root.Code) != len(c.Root.Code) {
		t.Errorf("Expected %d instructions, got %d", len(c.Root.Code), len(got.Root.Code))
	}
	if len(got.Root.Protos) != 1 {
		t.Errorf("Expected 1 nested function, got %d", len(got.Root.Protos))
	}
	if !got.Arch.LittleEndian || got.Arch.SizeSizeT != 8 {
		t.Errorf("Architecture block did not survive: %+v", got.Arch)
	}
}
