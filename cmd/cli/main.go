package main

import "github.com/keurnel/tricore-asm/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
