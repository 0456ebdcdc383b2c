// Package cmd implements the niiview command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/build"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
)

// Execute runs niiview with the arguments, streams and environment of the
// current process, then exits.
func Execute() {
	ExecuteWithGlobalState(state.NewGlobalState(context.Background()))
}

// ExecuteWithGlobalState runs niiview against gs and calls gs.OSExit.
func ExecuteWithGlobalState(gs *state.GlobalState) {
	newRootCommand(gs).execute()
}

type rootCommand struct {
	gs      *state.GlobalState
	cmd     *cobra.Command
	loggers *loggers
}

func newRootCommand(gs *state.GlobalState) *rootCommand {
	c := &rootCommand{gs: gs, loggers: newLoggers(gs)}

	rootCmd := &cobra.Command{
		Use:   gs.BinaryName,
		Short: "View NIfTI and DICOM images in the browser",
		Long:  "\n" + getBanner(gs),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := c.loggers.setup(); err != nil {
				return err
			}
			gs.Logger.Debugf("niiview version: %s", build.FullVersion())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().AddFlagSet(globalFlagSet(gs))
	rootCmd.SetArgs(gs.CmdArgs[1:])
	rootCmd.SetOut(gs.Stdout)
	rootCmd.SetErr(gs.Stderr)
	rootCmd.SetIn(gs.Stdin)

	rootCmd.AddCommand(
		getCmdServe(gs),
		getCmdEdit(gs),
		getCmdOpen(gs),
		getCmdCompare(gs),
		getCmdPanels(gs),
		getCmdVersion(gs),
	)

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) execute() {
	ctx, cancel := context.WithCancel(c.gs.Ctx)
	c.gs.Ctx = ctx

	exitCode := -1
	defer func() {
		cancel()
		c.loggers.stop()
		c.gs.OSExit(exitCode)
	}()
	defer func() {
		if r := recover(); r != nil {
			exitCode = int(exitcodes.GoPanic)
			c.gs.Logger.Errorf("niiview panicked: %v\n%s", r, debug.Stack())
		}
	}()

	err := c.cmd.Execute()
	exitCode = exitCodeOf(err)
	if err != nil {
		msg, fields := errext.Format(err)
		c.gs.Logger.WithFields(fields).Error(msg)
	}
}

// exitCodeOf is 0 without an error and -1 for an error without an exit code.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		return int(ecerr.ExitCode())
	}
	return -1
}

// globalFlagSet binds the flags shared by every command to gs.Flags. Their
// current values may come from the environment; the help shows the defaults.
func globalFlagSet(gs *state.GlobalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	defaults := gs.DefaultFlags

	flags.StringVar(&gs.Flags.LogOutput, "log-output", gs.Flags.LogOutput,
		"where logs go: 'stderr', 'stdout', 'none' or 'file=path[,level=info]'")
	flags.Lookup("log-output").DefValue = defaults.LogOutput

	flags.StringVar(&gs.Flags.LogFormat, "log-format", gs.Flags.LogFormat,
		"log format: 'text', 'json' or 'raw'")
	flags.Lookup("log-format").DefValue = defaults.LogFormat

	flags.StringVarP(&gs.Flags.ConfigFilePath, "config", "c", gs.Flags.ConfigFilePath,
		"JSON or YAML config file")
	flags.Lookup("config").DefValue = defaults.ConfigFilePath
	must(cobra.MarkFlagFilename(flags, "config", "json", "yaml", "yml"))

	flags.BoolVar(&gs.Flags.NoColor, "no-color", gs.Flags.NoColor, "disable colored output")
	flags.Lookup("no-color").DefValue = strconv.FormatBool(defaults.NoColor)

	flags.BoolVarP(&gs.Flags.Verbose, "verbose", "v", gs.Flags.Verbose, "log debug messages")
	flags.Lookup("verbose").DefValue = strconv.FormatBool(defaults.Verbose)

	flags.BoolVarP(&gs.Flags.Quiet, "quiet", "q", defaults.Quiet,
		fmt.Sprintf("don't print the %s banner and panel addresses", gs.BinaryName))

	return flags
}
