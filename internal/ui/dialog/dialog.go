// Package dialog implements the file selection dialogs shown on behalf of a
// rendering surface.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/fsext"
)

// ErrNotInteractive is returned when the dialog has no terminal to prompt on.
var ErrNotInteractive = errors.New("no interactive terminal for the file dialog")

// Options describes a file selection dialog.
type Options struct {
	// Label is shown as the prompt.
	Label string
	// Multiple allows selecting more than one file.
	Multiple bool
	// Filters lists the advertised file extensions by group name.
	Filters map[string][]string
}

// DefaultFilters advertises the formats the surface can render.
func DefaultFilters() map[string][]string {
	return map[string][]string{"Images": document.SupportedExtensions}
}

// Terminal prompts for file paths on a terminal. An empty answer cancels the
// dialog. Only one dialog is shown at a time. A read abandoned by a canceled
// dialog keeps waiting for its line, which goes to the next dialog.
type Terminal struct {
	In   io.Reader
	Out  io.Writer
	Fs   fsext.Fs
	Base string

	// IsTerminal overrides the terminal check of In, for tests.
	IsTerminal func() bool

	mu      sync.Mutex
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewTerminal returns a dialog reading from stdin, resolving relative paths
// against base.
func NewTerminal(fs fsext.Fs, base string, out io.Writer) *Terminal {
	return &Terminal{In: os.Stdin, Out: out, Fs: fs, Base: base}
}

func (t *Terminal) interactive() bool {
	if t.IsTerminal != nil {
		return t.IsTerminal()
	}
	f, ok := t.In.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec
}

// Pick shows the dialog and returns the selected files, or an empty selection
// if the user cancelled.
func (t *Terminal) Pick(ctx context.Context, opts Options) ([]document.URI, error) {
	if !t.interactive() {
		return nil, ErrNotInteractive
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintln(t.Out, color.BlueString(opts.Label)+" "+
		color.New(color.Faint).Sprint(formatFilters(opts.Filters))); err != nil {
		return nil, err
	}

	var selected []document.URI
	for {
		prompt := "  path"
		if opts.Multiple {
			prompt = fmt.Sprintf("  path %d", len(selected)+1)
			if len(selected) > 0 {
				prompt += " " + color.New(color.Faint, color.FgCyan).Sprint("[empty to finish]")
			}
		}
		if _, err := fmt.Fprint(t.Out, prompt+": "); err != nil {
			return nil, err
		}

		line, err := t.nextLine(ctx)
		line = strings.TrimSpace(line)
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case line == "":
			return selected, nil
		}

		uri, err := t.clean(line)
		if err != nil {
			if _, printErr := fmt.Fprintln(t.Out, color.RedString("- "+err.Error())); printErr != nil {
				return nil, printErr
			}
			continue
		}
		selected = append(selected, uri)
		if !opts.Multiple {
			return selected, nil
		}
	}
}

// nextLine waits for a line from In or for ctx to be done. Must be called with
// mu held.
func (t *Terminal) nextLine(ctx context.Context) (string, error) {
	if t.pending == nil {
		ch := make(chan lineResult, 1)
		t.pending = ch
		go func() {
			line, err := readLine(t.In)
			ch <- lineResult{line: line, err: err}
		}()
	}

	select {
	case r := <-t.pending:
		t.pending = nil
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Terminal) clean(s string) (document.URI, error) {
	uri, err := document.ParseURI(t.Base, s)
	if err != nil {
		return document.URI{}, err
	}
	exists, err := fsext.Exists(t.Fs, uri.Path())
	if err != nil {
		return document.URI{}, err
	}
	if !exists {
		return document.URI{}, fmt.Errorf("%s doesn't exist", uri.Path())
	}
	isDir, err := fsext.IsDir(t.Fs, uri.Path())
	if err != nil {
		return document.URI{}, err
	}
	if isDir {
		return document.URI{}, fmt.Errorf("%s is a directory", uri.Path())
	}
	if !document.IsSupported(uri.Name()) {
		if _, err := fmt.Fprintln(t.Out, color.YellowString("- %s may not be a supported format", uri.Name())); err != nil {
			return document.URI{}, err
		}
	}
	return uri, nil
}

func formatFilters(filters map[string][]string) string {
	if len(filters) == 0 {
		return ""
	}
	groups := make([]string, 0, len(filters))
	for name, exts := range filters {
		groups = append(groups, name+": ."+strings.Join(exts, ", ."))
	}
	slices.Sort(groups)
	return "[" + strings.Join(groups, "; ") + "]"
}

// readLine reads up to a newline one byte at a time, so nothing past the line
// is consumed from r.
func readLine(r io.Reader) (string, error) {
	result := make([]byte, 0, 64)
	buf := make([]byte, 1)
	for {
		n, err := io.ReadAtLeast(r, buf, 1)
		if err != nil {
			return string(result), err
		}
		if n != 1 {
			return string(result), errors.New("unexpected input when reading a path")
		} else if buf[0] == '\n' {
			return string(result), nil
		}
		result = append(result, buf[0])
	}
}
