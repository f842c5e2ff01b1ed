package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/keurnel/tricore-asm/internal/config"
	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/variant"
	"github.com/sirupsen/logrus"
)

// buildLogger returns the logrus.Logger every pipeline command logs
// diagnostics through via internal/diagnostics. Text formatting keeps the
// output readable on a terminal; the CLI is a thin front end, not the
// structured-logging consumer spec.md §1 carves out as a separate concern.
func buildLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger
}

// loadConfig returns nil, nil when path is empty: every flag this CLI
// reads from config has its own command-line override, so a config file
// is optional rather than a hard dependency.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// loadTable opens and parses the instruction table at path, dispatching on
// extension (".csv" for the CSV loader, anything else for JSON).
func loadTable(path string) (*instrtable.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening instruction table %s: %w", path, err)
	}
	defer f.Close()

	if filepath.Ext(path) == ".csv" {
		return instrtable.LoadCSV(f)
	}
	return instrtable.LoadJSON(f)
}

// resolveTablePath applies the --table flag override, falling back to
// paths.instruction_table when the config file supplies one.
func resolveTablePath(flagValue string, cfg *config.Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg != nil && cfg.Paths.InstructionTable != "" {
		return cfg.Paths.InstructionTable, nil
	}
	return "", fmt.Errorf("no instruction table configured: pass --table or set paths.instruction_table")
}

// variantOptions merges command-line filter flags with their config
// defaults: either source can turn a filter on, neither can turn one off
// the other has already required.
func variantOptions(cfg *config.Config, force32bit, noImplicit bool) variant.Options {
	if cfg != nil {
		force32bit = force32bit || cfg.Architecture.ForceWide
		noImplicit = noImplicit || cfg.Architecture.NoImplicit
	}
	return variant.Options{Force32Bit: force32bit, NoImplicit: noImplicit}
}

// bigEndian resolves the --big-endian override against the config's
// architecture.endianness key.
func bigEndian(cfg *config.Config, flagSet bool) bool {
	if flagSet {
		return true
	}
	return cfg != nil && cfg.IsBigEndian()
}

// outputOrDefaults returns cfg's [output] table, or the same all-artifacts
// defaults config.Load falls back to when cfg itself is nil (no --config
// flag given).
func outputOrDefaults(cfg *config.Config) config.Output {
	if cfg == nil {
		return config.Output{GenerateLst: true, GenerateBin: true, GenerateHex: true, GenerateMap: true}
	}
	return cfg.Output
}
