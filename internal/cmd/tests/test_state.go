// Package tests contains helpers and integration tests for the niiview
// commands.
package tests

import (
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/fsext"
	"github.com/niivue/niiview/internal/testutils"
	"github.com/niivue/niiview/internal/ui/console"
)

// GlobalTestState wraps a GlobalState backed by an in-memory file system and
// buffers, for running commands in tests.
type GlobalTestState struct {
	*state.GlobalState
	Cancel func()

	Stdout, Stderr *SafeBuffer
	LoggerHook     *testutils.SimpleLogrusHook

	Cwd string

	ExpectedExitCode int
}

// SafeBuffer is a bytes.Buffer safe for concurrent use.
type SafeBuffer struct {
	b bytes.Buffer
	m sync.RWMutex
}

func (b *SafeBuffer) Read(p []byte) (n int, err error) {
	b.m.Lock()
	defer b.m.Unlock()
	return b.b.Read(p)
}

func (b *SafeBuffer) Write(p []byte) (n int, err error) {
	b.m.Lock()
	defer b.m.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.m.RLock()
	defer b.m.RUnlock()
	return b.b.String()
}

// Bytes returns a copy of the buffered data.
func (b *SafeBuffer) Bytes() []byte {
	b.m.RLock()
	defer b.m.RUnlock()
	return bytes.Clone(b.b.Bytes())
}

var portRangeStart uint64 = 6565 //nolint:gochecknoglobals

// GetFreeBindAddr returns a localhost address with a port that was free when
// checked.
func GetFreeBindAddr(t testing.TB) string {
	t.Helper()
	for range 100 {
		port := atomic.AddUint64(&portRangeStart, 1)
		addr := net.JoinHostPort("localhost", strconv.FormatUint(port, 10))

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			continue // port was busy for some reason
		}
		require.NoError(t, listener.Close())
		return addr
	}
	t.Fatal("could not get a free port")
	return ""
}

// NewGlobalTestState returns a GlobalTestState whose OSExit asserts
// ExpectedExitCode. The address of the host defaults to a free port.
func NewGlobalTestState(t testing.TB) *GlobalTestState {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fs := fsext.NewMemMapFs()
	cwd := "/test/"
	require.NoError(t, fs.MkdirAll(cwd, 0o755))

	logger, hook := testutils.NewLogger(t)
	logger.SetLevel(logrus.InfoLevel)

	ts := &GlobalTestState{
		Cwd:        cwd,
		Cancel:     cancel,
		LoggerHook: hook,
		Stdout:     &SafeBuffer{},
		Stderr:     &SafeBuffer{},
	}

	osExitCalled := false
	defaultOsExitHandle := func(exitCode int) {
		cancel()
		osExitCalled = true
		assert.Equal(t, ts.ExpectedExitCode, exitCode)
	}

	t.Cleanup(func() {
		if ts.ExpectedExitCode > 0 {
			assert.Truef(t, osExitCalled, "expected exit code %d, but the os.Exit() mock was not called", ts.ExpectedExitCode)
		}
	})

	outMutex := &sync.Mutex{}
	defaultFlags := state.GetDefaultFlags(".config")

	ts.GlobalState = &state.GlobalState{
		Ctx:            ctx,
		FS:             fs,
		Getwd:          func() (string, error) { return ts.Cwd, nil },
		BinaryName:     "niiview",
		CmdArgs:        []string{},
		Env:            map[string]string{"NIIVIEW_ADDRESS": GetFreeBindAddr(t)},
		DefaultFlags:   defaultFlags,
		Flags:          defaultFlags,
		OutMutex:       outMutex,
		Stdout:         &console.Writer{Mutex: outMutex, Writer: ts.Stdout},
		Stderr:         &console.Writer{Mutex: outMutex, Writer: ts.Stderr},
		Stdin:          &SafeBuffer{},
		OSExit:         defaultOsExitHandle,
		SignalNotify:   func(chan<- os.Signal, ...os.Signal) {},
		SignalStop:     func(chan<- os.Signal) {},
		Logger:         logger,
		FallbackLogger: logger,
	}
	return ts
}
