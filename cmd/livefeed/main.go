// Package main is the entry point for the livefeed player.
package main

import (
	"os"

	"github.com/jmylchreest/livefeed/cmd/livefeed/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
