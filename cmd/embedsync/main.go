// Package main provides the entry point for the embedsync CLI.
package main

import (
	"os"

	"github.com/photonlabs/embedsync/cmd/embedsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
