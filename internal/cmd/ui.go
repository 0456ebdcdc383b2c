package cmd

import (
	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/ui/console"
)

func newConsole(gs *state.GlobalState) *console.Console {
	return console.New(gs.Stdout, gs.Stderr, gs.Stdin, !gs.Flags.NoColor, gs.Logger)
}

func getBanner(gs *state.GlobalState) string {
	return newConsole(gs).Banner()
}

func printBanner(gs *state.GlobalState) {
	if gs.Flags.Quiet {
		return
	}
	printToStdout(gs, "\n"+getBanner(gs)+"\n\n")
}
