// Package main is the entry point for the sqlbeam binary.
package main

import (
	"os"

	"sqlbeam/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
