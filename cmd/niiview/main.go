// Package main is the entry point of the niiview binary.
package main

import "github.com/niivue/niiview/internal/cmd"

func main() {
	cmd.Execute()
}
