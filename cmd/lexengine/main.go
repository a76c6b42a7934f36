// Package main provides the entry point for the lexengine CLI.
package main

import (
	"os"

	"github.com/clearlaw/lexengine/cmd/lexengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
