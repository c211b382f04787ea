// Package main is the entry point for the wren CLI.
//
// Usage:
//
//	wren [flags] <command> [args]
//
// Commands:
//
//	run      - Local loop: idle behavior, display greeter, stdin console
//	serve    - Remote command server (separate process, remote priority)
//	expr     - Apply one expression and exit
//	play     - Run one action sequence and exit
//	say      - Speak one clip and exit
//	snap     - Grab one frame from the eye camera
//	status   - Show who holds which hardware lease
//	remote   - Drive a robot over its remote API
package main

import (
	"fmt"
	"os"

	"github.com/wrenlabs/go-wren/cmd/wren/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
