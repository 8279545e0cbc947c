// Package main is the entry point for the schema2cli binary.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/searchkit/schema2cli/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
