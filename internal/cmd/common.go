package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/document"
)

// Panic if the given error is not nil.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	v, err := flags.GetBool(key)
	if err != nil {
		panic(err)
	}
	return null.NewBool(v, flags.Changed(key))
}

func getNullString(flags *pflag.FlagSet, key string) null.String {
	v, err := flags.GetString(key)
	if err != nil {
		panic(err)
	}
	return null.NewString(v, flags.Changed(key))
}

func printToStdout(gs *state.GlobalState, s string) {
	if _, err := fmt.Fprint(gs.Stdout, s); err != nil {
		gs.Logger.Errorf("could not print '%s' to stdout: %s", s, err.Error())
	}
}

// parseResources turns the command arguments into resource identities,
// resolving relative paths against the working directory.
func parseResources(gs *state.GlobalState, args []string) ([]document.URI, error) {
	cwd, err := gs.Getwd()
	if err != nil {
		return nil, err
	}
	uris := make([]document.URI, 0, len(args))
	for _, arg := range args {
		uri, err := document.ParseURI(cwd, arg)
		if err != nil {
			return nil, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
