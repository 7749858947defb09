// main package for vss2git command-line tool
// Package main is the entry point for the vss2git CLI.
package main

import "vss2git.dev/pkg/vss2git/cmd"

func main() {
	cmd.Execute()
}
