// Package config handles quokka.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/JacisNonsense/quokka-lua/pkg/vm"
)

// FileName is the configuration file looked up next to a chunk or in the
// working directory tree.
const FileName = "quokka.toml"

// Config represents a quokka.toml file.
type Config struct {
	Limits Limits `toml:"limits"`
	Log    Log    `toml:"log"`

	// Dir is the directory the file was loaded from (set at load time).
	Dir string `toml:"-"`
}

// Limits bounds the engine's resources.
type Limits struct {
	CallDepth int `toml:"call-depth"`
	Registers int `toml:"registers"`
}

// Log configures diagnostic output.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Limits: Limits{
			CallDepth: vm.DefaultMaxCallDepth,
			Registers: vm.DefaultMaxRegisters,
		},
	}
}

// Load parses a quokka.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if c.Dir, err = filepath.Abs(dir); err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.Limits.CallDepth <= 0 {
		c.Limits.CallDepth = vm.DefaultMaxCallDepth
	}
	if c.Limits.Registers <= 0 {
		c.Limits.Registers = vm.DefaultMaxRegisters
	}
	return c, nil
}

// FindAndLoad walks up from startDir looking for a quokka.toml. It returns
// the defaults (not an error) when no file exists anywhere up the tree.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Apply transfers the configured limits onto a VM instance.
func (c *Config) Apply(m *vm.VM) {
	m.MaxCallDepth = c.Limits.CallDepth
	m.MaxRegisters = c.Limits.Registers
}
