package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/provider"
	"github.com/niivue/niiview/internal/server"
)

// resourceCmd backs the commands opening resources in a panel. The request
// goes to a host already running at the configured address; without one, a
// host is started in process and kept up until its panels are closed.
type resourceCmd struct {
	gs *state.GlobalState

	name   string
	remote func(ctx context.Context, c *server.Client, uris []string) (panel.Info, error)
	local  func(ctx context.Context, pr *provider.Provider, uris []document.URI) (*panel.Panel, error)
}

func (c *resourceCmd) run(cmd *cobra.Command, args []string) error {
	conf, err := getConsolidatedConfig(c.gs, cmd.Flags())
	if err != nil {
		return err
	}

	uris, err := parseResources(c.gs, args)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	client, err := server.NewClient(conf.Address.String, server.WithLogger(c.gs.Logger))
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	ctx := c.gs.Ctx
	if hostIsUp(ctx, client) {
		return c.forward(ctx, client, uris)
	}

	printBanner(c.gs)

	h, err := newHost(c.gs, conf)
	if err != nil {
		return err
	}
	h.start()
	defer h.stop()

	p, err := c.local(ctx, h.provider, uris)
	if err != nil {
		return resourceError(err)
	}
	return h.wait(ctx, p)
}

func (c *resourceCmd) forward(ctx context.Context, client *server.Client, uris []document.URI) error {
	locators := make([]string, 0, len(uris))
	for _, uri := range uris {
		locators = append(locators, uri.String())
	}

	c.gs.Logger.WithField("host", client.BaseURL.Host).Debugf("Forwarding %s to the running host", c.name)
	info, err := c.remote(ctx, client, locators)
	if err != nil {
		var apiErr server.Error
		if errors.As(err, &apiErr) && apiErr.Status == strconv.Itoa(http.StatusUnprocessableEntity) {
			return errext.WithExitCodeIfNone(err, exitcodes.ResourceUnreadable)
		}
		return errext.WithExitCodeIfNone(err, exitcodes.HostUnreachable)
	}

	printToStdout(c.gs, fmt.Sprintf("%s: opened %s on %s\n", info.Title, info.ID, client.BaseURL.Host))
	return nil
}

func hostIsUp(ctx context.Context, client *server.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx) == nil
}

func resourceError(err error) error {
	var ioErr *document.IOError
	if errors.As(err, &ioErr) {
		return errext.WithExitCodeIfNone(err, exitcodes.ResourceUnreadable)
	}
	return err
}

func getCmdEdit(gs *state.GlobalState) *cobra.Command {
	c := &resourceCmd{
		gs:   gs,
		name: "edit",
		remote: func(ctx context.Context, client *server.Client, uris []string) (panel.Info, error) {
			return client.Edit(ctx, uris[0])
		},
		local: func(ctx context.Context, pr *provider.Provider, uris []document.URI) (*panel.Panel, error) {
			doc, err := pr.OpenDocument(ctx, uris[0])
			if err != nil {
				return nil, err
			}
			return pr.ResolveEditor(ctx, doc)
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit file",
		Short: "Open an image in an editor panel",
		Long: `Open an image in an editor panel.

The panel is titled after the file name and the image is sent to the viewer as
soon as it is ready.`,
		Example: `
  # View a NIfTI volume
  $ niiview edit brain.nii.gz`[1:],
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	editCmd.Flags().SortFlags = false
	editCmd.Flags().AddFlagSet(configFlagSet())
	return editCmd
}

func getCmdOpen(gs *state.GlobalState) *cobra.Command {
	c := &resourceCmd{
		gs:   gs,
		name: "open",
		remote: func(ctx context.Context, client *server.Client, uris []string) (panel.Info, error) {
			return client.Open(ctx, uris[0])
		},
		local: func(ctx context.Context, pr *provider.Provider, uris []document.URI) (*panel.Panel, error) {
			return pr.CreateOrShow(ctx, uris[0])
		},
	}

	openCmd := &cobra.Command{
		Use:   "open file",
		Short: "Open an image in a web panel",
		Example: `
  # View a DICOM file
  $ niiview open scan.dcm`[1:],
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	openCmd.Flags().SortFlags = false
	openCmd.Flags().AddFlagSet(configFlagSet())
	return openCmd
}

func getCmdCompare(gs *state.GlobalState) *cobra.Command {
	c := &resourceCmd{
		gs:   gs,
		name: "compare",
		remote: func(ctx context.Context, client *server.Client, uris []string) (panel.Info, error) {
			return client.Compare(ctx, uris)
		},
		local: func(ctx context.Context, pr *provider.Provider, uris []document.URI) (*panel.Panel, error) {
			return pr.CreateCompareView(ctx, uris)
		},
	}

	compareCmd := &cobra.Command{
		Use:   "compare file...",
		Short: "Open several images side by side",
		Long: `Open several images side by side in a compare panel.

The images are loaded in the order given. A file that can't be read is reported
and skipped; the others are still shown.`,
		Example: `
  # Compare two acquisitions
  $ niiview compare t1.nii.gz t2.nii.gz`[1:],
		Args: cobra.MinimumNArgs(1),
		RunE: c.run,
	}
	compareCmd.Flags().SortFlags = false
	compareCmd.Flags().AddFlagSet(configFlagSet())
	return compareCmd
}
