// Package main provides the entry point for the parley CLI.
package main

import (
	"os"

	"github.com/parley-chat/parley/cmd/parley/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
