// Package main is the m2dbt command line: it inspects the state block
// layout, lowers guest instruction lists to IR, compiles them to host
// code, and disassembles code images.
package main

import (
	"fmt"
	"os"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
