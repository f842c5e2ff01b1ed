package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/keurnel/tricore-asm/internal/assembler"
	"github.com/keurnel/tricore-asm/internal/diagnostics"
	"github.com/keurnel/tricore-asm/internal/lineMap"
	"github.com/keurnel/tricore-asm/internal/macro"
	"github.com/keurnel/tricore-asm/internal/objectfile"
	"github.com/spf13/cobra"
)

var (
	assembleConfigPath string
	assembleTablePath  string
	assembleOutPath    string
	assembleBaseDir    string
	assembleForce32    bool
	assembleNoImplicit bool
)

var assembleCmd = &cobra.Command{
	Use:     "assemble <source-file>",
	GroupID: "pipeline",
	Short:   "Assemble one TriCore source file into a relocatable object file.",
	Args:    cobra.ExactArgs(1),
	RunE:    runAssemble,
}

func init() {
	flags := assembleCmd.Flags()
	flags.StringVar(&assembleConfigPath, "config", "", "path to a TOML config file")
	flags.StringVar(&assembleTablePath, "table", "", "path to the instruction table (JSON or CSV); overrides config")
	flags.StringVar(&assembleOutPath, "out", "", "output object file path (defaults to <source>.obj)")
	flags.StringVar(&assembleBaseDir, "base-dir", "", "base directory INCBIN paths resolve against")
	flags.BoolVar(&assembleForce32, "force-32bit", false, "only select 32-bit encodings")
	flags.BoolVar(&assembleNoImplicit, "no-implicit", false, "reject variants with an implicit A[10]/A[15] operand")
}

// runAssemble wires the narrow collaborators spec.md's invocation contract
// names: expand macros, load the instruction table, run the two-pass
// assembler, and write the resulting object file. No banner, no build
// statistics, no multi-file batching — that belongs to a richer front end
// than this one is meant to be.
func runAssemble(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]

	cfg, err := loadConfig(assembleConfigPath)
	if err != nil {
		return err
	}

	tablePath, err := resolveTablePath(assembleTablePath, cfg)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	table, err := loadTable(tablePath)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("assemble: reading %s: %w", sourcePath, err)
	}

	expanded, err := macro.Expand(string(raw))
	if err != nil {
		return fmt.Errorf("assemble: expanding macros: %w", err)
	}

	lines, err := expandedLines(sourcePath, expanded)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	asmr := assembler.New(assembler.Options{
		Table:   table,
		Variant: variantOptions(cfg, assembleForce32, assembleNoImplicit),
		BaseDir: assembleBaseDir,
	})

	result, err := asmr.Assemble(sourcePath, lines)
	ctx := diagnostics.FromAssembler(sourcePath, result.Diagnostics)
	diagnostics.Log(buildLogger(), ctx)
	if err != nil {
		return fmt.Errorf("assemble: %s failed with %d diagnostic(s)", sourcePath, len(result.Diagnostics))
	}

	outPath := assembleOutPath
	if outPath == "" {
		outPath = sourcePath + ".obj"
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("assemble: creating %s: %w", outPath, err)
	}
	defer out.Close()

	if err := objectfile.Encode(out, result.Object); err != nil {
		return fmt.Errorf("assemble: encoding %s: %w", outPath, err)
	}

	cmd.Printf("assembled %s -> %s (%d instruction(s), %d diagnostic(s))\n",
		sourcePath, outPath, len(result.Object.Instructions), len(result.Diagnostics))
	return nil
}

// expandedLines runs the macro-expanded source through a lineMap.Tracker
// so a later diagnostic renderer can still trace an expanded line back to
// the source line the user actually wrote, then splits it for the
// assembler. lineMap.Track requires a ".asm"-suffixed path; sourcePath
// already is one since that is the only extension the assembler accepts.
func expandedLines(sourcePath, expanded string) ([]string, error) {
	tracker, err := lineMap.Track(sourcePath)
	if err != nil {
		return nil, err
	}
	tracker.Snapshot(expanded)
	return strings.Split(strings.TrimRight(tracker.Source(), "\n"), "\n"), nil
}
