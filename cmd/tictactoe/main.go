// Package main provides the tictactoe binary: the game server and its
// schema migration runner.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
