package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tricore-asm",
	Short: "TriCore assembler and linker",
	Long:  `tricore-asm assembles and links TriCore source files against an externally loaded instruction table.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "pipeline",
		Title: "Pipeline",
	})

	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(linkCmd)
}
