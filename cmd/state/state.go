// Package state holds the process-wide state shared by every niiview command.
package state

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/fsext"
	"github.com/niivue/niiview/internal/ui/console"
)

// GlobalState groups the process-external state of a command: arguments,
// environment, standard streams, signals and exit. Commands never reach for the
// os package directly, so tests can swap all of it.
type GlobalState struct {
	Ctx context.Context //nolint:containedctx

	FS         fsext.Fs
	Getwd      func() (string, error)
	BinaryName string
	CmdArgs    []string
	Env        map[string]string

	DefaultFlags, Flags GlobalOptions

	OutMutex       *sync.Mutex
	Stdout, Stderr *console.Writer
	Stdin          io.Reader

	OSExit       func(int)
	SignalNotify func(chan<- os.Signal, ...os.Signal)
	SignalStop   func(chan<- os.Signal)

	Logger         *logrus.Logger
	FallbackLogger logrus.FieldLogger
}

// NewGlobalState returns the GlobalState of the running process. It is the
// only place reading os globals.
func NewGlobalState(ctx context.Context) *GlobalState {
	termType := os.Getenv("TERM")
	outMutex := &sync.Mutex{}
	stdout := console.NewWriter(os.Stdout, outMutex, termType)
	stderr := console.NewWriter(os.Stderr, outMutex, termType)

	env := BuildEnvMap(os.Environ())
	confDir, err := os.UserConfigDir()
	if err != nil {
		confDir = ".config"
	}
	defaultFlags := GetDefaultFlags(confDir)
	globalFlags := getFlags(defaultFlags, env)

	logLevel := logrus.InfoLevel
	if globalFlags.Verbose {
		logLevel = logrus.DebugLevel
	}

	return &GlobalState{
		Ctx:          ctx,
		FS:           fsext.NewOsFs(),
		Getwd:        os.Getwd,
		BinaryName:   "niiview",
		CmdArgs:      os.Args,
		Env:          env,
		DefaultFlags: defaultFlags,
		Flags:        globalFlags,
		OutMutex:     outMutex,
		Stdout:       stdout,
		Stderr:       stderr,
		Stdin:        os.Stdin,
		OSExit:       os.Exit,
		SignalNotify: signal.Notify,
		SignalStop:   signal.Stop,
		Logger: &logrus.Logger{
			Out: stderr,
			Formatter: &logrus.TextFormatter{
				ForceColors:   stderr.IsTTY,
				DisableColors: !stderr.IsTTY || globalFlags.NoColor,
			},
			Hooks: make(logrus.LevelHooks),
			Level: logLevel,
		},
		FallbackLogger: &logrus.Logger{ // we may modify the other one
			Out:       stderr,
			Formatter: new(logrus.TextFormatter), // no fancy formatting here
			Hooks:     make(logrus.LevelHooks),
			Level:     logLevel,
		},
	}
}

// BuildEnvMap returns a map from raw environment variable strings.
func BuildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}
