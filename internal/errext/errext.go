// Package errext attaches the exit code of the niiview process and a hint for
// the user to errors. Both survive wrapping with %w; the root command reads
// them back when the error reaches it.
package errext

import (
	"errors"
	"strings"

	"github.com/niivue/niiview/internal/errext/exitcodes"
)

// HasExitCode is implemented by errors that decide the process exit code.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// HasHint is implemented by errors carrying a suggestion for the user, like
// the command to run instead.
type HasHint interface {
	error
	Hint() string
}

type exitError struct {
	error
	code exitcodes.ExitCode
}

func (e exitError) Unwrap() error                { return e.error }
func (e exitError) ExitCode() exitcodes.ExitCode { return e.code }

type hintError struct {
	error
	hint string
}

func (e hintError) Unwrap() error { return e.error }

// Hint joins the hint with the ones of the wrapped errors, outermost first.
func (e hintError) Hint() string {
	hints := []string{e.hint}
	var inner HasHint
	if errors.As(e.error, &inner) {
		hints = append(hints, inner.Hint())
	}
	return strings.Join(hints, "; ")
}

// WithExitCodeIfNone sets the exit code of err unless an error in its chain
// already has one. A nil err stays nil.
func WithExitCodeIfNone(err error, code exitcodes.ExitCode) error {
	var has HasExitCode
	if err == nil || errors.As(err, &has) {
		return err
	}
	return exitError{err, code}
}

// WithHint attaches hint to err. A nil err stays nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return hintError{err, hint}
}

// Fail is WithExitCodeIfNone on top of WithHint, for the errors that end a
// command with advice for the user.
func Fail(err error, code exitcodes.ExitCode, hint string) error {
	return WithExitCodeIfNone(WithHint(err, hint), code)
}

var (
	_ HasExitCode = exitError{}
	_ HasHint     = hintError{}
)

// Format returns the message of err and the log fields for its hint and exit
// code, when it has them.
func Format(err error) (string, map[string]any) {
	if err == nil {
		return "", nil
	}
	fields := map[string]any{}
	if h := HasHint(nil); errors.As(err, &h) {
		fields["hint"] = h.Hint()
	}
	if c := HasExitCode(nil); errors.As(err, &c) {
		fields["exitCode"] = int(c.ExitCode())
	}
	return err.Error(), fields
}
