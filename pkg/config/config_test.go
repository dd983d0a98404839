package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JacisNonsense/quokka-lua/pkg/vm"
)

func TestConfig_Load(t *testing.T) {
	dir := t.TempDir()
	content := `
[limits]
call-depth = 64
registers = 4096

[log]
verbosity = 2
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Unexpected load error: %v", err)
	}
	if c.Limits.CallDepth != 64 || c.Limits.Registers != 4096 {
		t.Errorf("Expected limits 64/4096, got %d/%d", c.Limits.CallDepth, c.Limits.Registers)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("Expected verbosity 2, got %d", c.Log.Verbosity)
	}

	m := vm.New()
	c.Apply(m)
	if m.MaxCallDepth != 64 || m.MaxRegisters != 4096 {
		t.Errorf("Expected limits applied to the VM, got %d/%d", m.MaxCallDepth, m.MaxRegisters)
	}
}

func TestConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[log]\nverbosity = 1\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Unexpected load error: %v", err)
	}
	if c.Limits.CallDepth != vm.DefaultMaxCallDepth {
		t.Errorf("Expected the default call depth, got %d", c.Limits.CallDepth)
	}
	if c.Limits.Registers != vm.DefaultMaxRegisters {
		t.Errorf("Expected the default register limit, got %d", c.Limits.Registers)
	}
}

func TestConfig_FindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[limits]\ncall-depth = 33\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Limits.CallDepth != 33 {
		t.Errorf("Expected the ancestor config to be found, got depth %d", c.Limits.CallDepth)
	}
}

func TestConfig_MissingFileYieldsDefaults(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Limits.CallDepth != vm.DefaultMaxCallDepth {
		t.Errorf("Expected defaults, got depth %d", c.Limits.CallDepth)
	}
}
