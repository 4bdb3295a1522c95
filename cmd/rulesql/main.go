// Package main provides the rulesql command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rulesql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
