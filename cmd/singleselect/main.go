// Package main is the entry point for the singleselect CLI.
package main

import (
	"os"

	"github.com/runger/singleselect/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
