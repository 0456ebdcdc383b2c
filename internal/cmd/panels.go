package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
	"github.com/niivue/niiview/internal/server"
)

type cmdPanels struct {
	gs *state.GlobalState
}

func (c *cmdPanels) run(cmd *cobra.Command, _ []string) error {
	conf, err := getConsolidatedConfig(c.gs, cmd.Flags())
	if err != nil {
		return err
	}

	client, err := server.NewClient(conf.Address.String, server.WithLogger(c.gs.Logger))
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	infos, err := client.Panels(c.gs.Ctx)
	if err != nil {
		return errext.Fail(
			fmt.Errorf("couldn't reach a host at %s: %w", conf.Address.String, err),
			exitcodes.HostUnreachable,
			"start one with 'niiview serve'",
		)
	}

	if len(infos) == 0 {
		printToStdout(c.gs, "no open panels\n")
		return nil
	}
	return newConsole(c.gs).PrintYAML(infos)
}

func getCmdPanels(gs *state.GlobalState) *cobra.Command {
	c := &cmdPanels{gs: gs}

	panelsCmd := &cobra.Command{
		Use:   "panels",
		Short: "List the panels of a running host",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	panelsCmd.Flags().SortFlags = false
	panelsCmd.Flags().AddFlagSet(configFlagSet())
	return panelsCmd
}
