// Package main is the entry point for the planbase CLI binary.
package main

import (
	"os"

	"planbase/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
