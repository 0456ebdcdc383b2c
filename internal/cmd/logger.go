package cmd

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
	"github.com/niivue/niiview/internal/log"
)

const loggersStopTimeout = 5 * time.Second

// RawFormatter writes only the message of an entry.
type RawFormatter struct{}

// Format implements logrus.Formatter.
func (RawFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

// loggers configures gs.Logger from the global flags and owns the goroutines
// of the asynchronous hooks, which are flushed by stop.
type loggers struct {
	gs     *state.GlobalState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLoggers(gs *state.GlobalState) *loggers {
	return &loggers{gs: gs, cancel: func() {}}
}

func (l *loggers) setup() error {
	gs := l.gs
	if gs.Flags.Verbose {
		gs.Logger.SetLevel(logrus.DebugLevel)
	}

	tty, err := l.setOutput(gs.Flags.LogOutput)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	formatter, err := logFormatter(gs.Flags.LogFormat, tty && !gs.Flags.NoColor, gs.Flags.NoColor)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	gs.Logger.SetFormatter(formatter)

	// net/http and other packages log through the standard logger
	w := gs.Logger.Writer()
	stdlog.SetOutput(w)
	l.untilStop(func(ctx context.Context) {
		<-ctx.Done()
		_ = w.Close()
	})
	return nil
}

// setOutput points the logger at line and reports whether it is a terminal.
func (l *loggers) setOutput(line string) (bool, error) {
	gs := l.gs
	switch {
	case line == "stderr":
		gs.Logger.SetOutput(gs.Stderr)
		return gs.Stderr.IsTTY, nil
	case line == "stdout":
		gs.Logger.SetOutput(gs.Stdout)
		return gs.Stdout.IsTTY, nil
	case line == "none":
		gs.Logger.SetOutput(io.Discard)
		return false, nil
	case strings.HasPrefix(line, "file"):
		hook, err := log.FileHookFromConfigLine(gs.FS, gs.Getwd, gs.FallbackLogger, line)
		if err != nil {
			return false, err
		}
		l.untilStop(hook.Listen)
		gs.Logger.AddHook(hook)
		gs.Logger.SetOutput(io.Discard)
		return false, nil
	default:
		return false, fmt.Errorf("unsupported log output %q", line)
	}
}

// untilStop runs fn in its own goroutine with a context canceled by stop.
func (l *loggers) untilStop(fn func(context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	prev := l.cancel
	l.cancel = func() {
		cancel()
		prev()
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(ctx)
	}()
}

func logFormatter(format string, forceColors, noColor bool) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return &logrus.TextFormatter{ForceColors: forceColors, DisableColors: noColor}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	case "raw":
		return RawFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// stop flushes the asynchronous hooks, waiting at most loggersStopTimeout.
func (l *loggers) stop() {
	l.cancel()
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(loggersStopTimeout):
		l.gs.FallbackLogger.Errorf("Logs weren't flushed in %s", loggersStopTimeout)
	}
}
