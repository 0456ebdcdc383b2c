package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niivue/niiview/cmd/state"
)

type cmdServe struct {
	gs *state.GlobalState
}

func (c *cmdServe) run(cmd *cobra.Command, _ []string) error {
	conf, err := getConsolidatedConfig(c.gs, cmd.Flags())
	if err != nil {
		return err
	}

	printBanner(c.gs)

	h, err := newHost(c.gs, conf)
	if err != nil {
		return err
	}
	h.start()
	defer h.stop()

	if !c.gs.Flags.Quiet {
		printToStdout(c.gs, fmt.Sprintf("  host: http://%s\n  root: %s\n\n",
			h.listener.Addr().String(), conf.Root.String))
	}

	return h.wait(c.gs.Ctx)
}

func getCmdServe(gs *state.GlobalState) *cobra.Command {
	c := &cmdServe{gs: gs}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a host for viewer panels",
		Long: `Start a host for viewer panels.

The host serves the viewer pages and a REST API at the configured address. The
edit, open and compare commands forward their requests to a running host, so
panels opened from different terminals share it. The host runs until it is
interrupted.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().AddFlagSet(configFlagSet())
	return serveCmd
}
