package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(MainWithArgs(os.Args[1:]))
}

// MainWithArgs runs the CLI and returns the process exit code.
func MainWithArgs(args []string) int {
	root := buildRootCmd(&options{getenv: os.Getenv})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "scoringd: %v\n", err)
		return 1
	}
	return 0
}
