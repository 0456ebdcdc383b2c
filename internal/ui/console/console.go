// Package console implements the synced, optionally colored terminal output of
// the niiview CLI.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const defaultTermWidth = 80

// Console writes to stdout with an optional color theme.
type Console struct {
	Stdout *Writer
	Stderr *Writer
	Stdin  io.Reader

	theme  *color.Color
	logger logrus.FieldLogger
}

// New returns a console. Colors are only used when both outputs are TTYs and
// colorize is set.
func New(stdout, stderr *Writer, stdin io.Reader, colorize bool, logger logrus.FieldLogger) *Console {
	c := &Console{
		Stdout: stdout,
		Stderr: stderr,
		Stdin:  stdin,
		logger: logger,
	}
	if colorize && stdout.IsTTY && stderr.IsTTY {
		c.theme = newColor(color.FgCyan)
	}
	return c
}

// IsTTY reports whether both outputs are terminals.
func (c *Console) IsTTY() bool {
	return c.Stdout.IsTTY && c.Stderr.IsTTY
}

// ApplyTheme adds ANSI color escape sequences to s if themes are enabled;
// otherwise it returns s unchanged.
func (c *Console) ApplyTheme(s string) string {
	if c.theme != nil {
		return c.theme.Sprint(s)
	}
	return s
}

// Banner returns the niiview ASCII art banner.
func (c *Console) Banner() string {
	banner := strings.Join([]string{
		`           _ _       _                 `,
		`    _ __  (_|_)_   _(_) _____      __  `,
		`   | '_ \ | | \ \ / / |/ _ \ \ /\ / /  `,
		`   | | | || | |\ V /| |  __/\ V  V /   `,
		`   |_| |_||_|_| \_/ |_|\___| \_/\_/    `,
	}, "\n")

	return c.ApplyTheme(banner)
}

// Print writes s to stdout.
func (c *Console) Print(s string) {
	if _, err := fmt.Fprint(c.Stdout, s); err != nil {
		c.logger.Errorf("could not print '%s' to stdout: %s", s, err.Error())
	}
}

// Printf writes s to stdout, formatted with optional arguments.
func (c *Console) Printf(s string, a ...any) {
	if _, err := fmt.Fprintf(c.Stdout, s, a...); err != nil {
		c.logger.Errorf("could not print '%s' to stdout: %s", s, err.Error())
	}
}

// PrintYAML marshals v to YAML, and writes the result to stdout. It returns an
// error if marshalling fails.
func (c *Console) PrintYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal YAML: %w", err)
	}
	c.Print(string(data))
	return nil
}

// TermWidth returns the terminal window width in characters. If the window size
// lookup fails, or if we're not running in a TTY, the default value of 80 is
// returned.
func (c *Console) TermWidth() (int, error) {
	if !c.Stdout.IsTTY || c.Stdout.RawOut == nil {
		return defaultTermWidth, nil
	}

	width, _, err := term.GetSize(int(c.Stdout.RawOut.Fd())) //nolint:gosec
	if !(width > 0) || err != nil {
		return defaultTermWidth, err
	}
	return width, nil
}

// newColor returns the requested color with the given attributes.
func newColor(attributes ...color.Attribute) *color.Color {
	c := color.New(attributes...)
	c.EnableColor()
	return c
}
