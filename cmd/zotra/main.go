// Package main provides the entry point for the zotra CLI.
package main

import (
	"os"

	"zotra/cmd/zotra/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
