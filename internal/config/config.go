// Package config loads the TOML document that configures a build: target
// endianness, the instruction table path/format, output paths, and the
// force-32-bit/no-implicit-operand assembly defaults (spec.md §5.3,
// §6.4).
//
// Grounded on original_source/config_loader.py's key layout
// ([architecture]/[paths]/[output] tables) using github.com/BurntSushi/toml
// rather than Python's json module; unlike TASMConfig's singleton, Load
// returns an ordinary *Config value — per the teacher's own "Global mutable
// state" note (spec.md §9), nothing in this package keeps package-level
// state.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Architecture mirrors config_loader.py's [architecture] table.
type Architecture struct {
	Endianness string `toml:"endianness"`
	WordSize   int    `toml:"word_size"`
	ForceWide  bool   `toml:"force_32bit"`
	NoImplicit bool   `toml:"no_implicit"`
}

// Paths mirrors config_loader.py's [paths] table.
type Paths struct {
	InstructionTable string `toml:"instruction_table"`
	OutputDir        string `toml:"output_dir"`
}

// Output mirrors config_loader.py's [output] table: which artifacts a
// build emits alongside the object file.
type Output struct {
	GenerateLst bool `toml:"generate_lst"`
	GenerateBin bool `toml:"generate_bin"`
	GenerateHex bool `toml:"generate_hex"`
	GenerateMap bool `toml:"generate_map"`
}

// Config is the fully parsed configuration document.
type Config struct {
	Architecture Architecture `toml:"architecture"`
	Paths        Paths        `toml:"paths"`
	Output       Output       `toml:"output"`
}

// defaults mirrors the Get(..., default=...) fallbacks config_loader.py's
// properties hard-code (is_little_endian, word_size, generate_lst, etc).
func defaults() Config {
	return Config{
		Architecture: Architecture{Endianness: "little", WordSize: 32},
		Paths:        Paths{OutputDir: "output/assembly_build"},
		Output:       Output{GenerateLst: true, GenerateBin: true, GenerateHex: true, GenerateMap: true},
	}
}

// Load reads and parses a TOML config file at path, filling in the same
// defaults config_loader.py's accessor properties fall back to for any
// table or key the document omits.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// IsBigEndian reports the configured byte order, matching
// TASMConfig.is_big_endian's negation of is_little_endian rather than a
// separate stored flag.
func (c *Config) IsBigEndian() bool {
	return c.Architecture.Endianness != "little"
}
