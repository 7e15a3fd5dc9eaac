// Package main is the entry point for trackctl, the featuretrack
// operations CLI.
package main

import (
	"fmt"
	"os"

	"github.com/toloka-partners/featuretrack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
