package console

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Writer syncs writes with a mutex and, if the output is a TTY, clears before
// newlines.
type Writer struct {
	RawOut *os.File
	Mutex  *sync.Mutex
	Writer io.Writer
	IsTTY  bool
}

// NewWriter wraps out, detecting whether it is a terminal. A dumb termType
// never counts as one.
func NewWriter(out *os.File, mx *sync.Mutex, termType string) *Writer {
	isTTY := termType != "dumb" && (isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()))
	return &Writer{
		RawOut: out,
		Mutex:  mx,
		Writer: colorable.NewColorable(out),
		IsTTY:  isTTY,
	}
}

func (w *Writer) Write(p []byte) (n int, err error) {
	origLen := len(p)
	if w.IsTTY {
		// Add a TTY code to erase till the end of line with each new line
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}

	w.Mutex.Lock()
	n, err = w.Writer.Write(p)
	w.Mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}
