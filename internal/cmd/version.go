package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/build"
)

type versionCmd struct {
	gs     *state.GlobalState
	isJSON bool
}

func (c *versionCmd) run(cmd *cobra.Command, _ []string) error {
	if !c.isJSON {
		_, err := fmt.Fprintf(c.gs.Stdout, "%s %s\n", cmd.Root().Name(), build.FullVersion())
		return err
	}

	jsonDetails, err := json.Marshal(build.VersionDetails())
	if err != nil {
		return fmt.Errorf("failed to produce the JSON version details: %w", err)
	}

	_, err = fmt.Fprintln(c.gs.Stdout, string(jsonDetails))
	return err
}

func getCmdVersion(gs *state.GlobalState) *cobra.Command {
	versionCmd := &versionCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  `Show the application version and exit.`,
		Args:  cobra.NoArgs,
		RunE:  versionCmd.run,
	}

	cmd.Flags().BoolVar(&versionCmd.isJSON, "json", false, "print the version details as JSON")

	return cmd
}
