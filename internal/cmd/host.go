package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/provider"
	"github.com/niivue/niiview/internal/server"
	"github.com/niivue/niiview/internal/ui/dialog"
)

const (
	pingTimeout = time.Second
	stopTimeout = 5 * time.Second
)

// host runs the event loop, the provider and the HTTP server in process.
type host struct {
	gs       *state.GlobalState
	logger   logrus.FieldLogger
	listener net.Listener
	loop     *eventloop.EventLoop
	provider *provider.Provider
	server   *server.Server

	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	stopServer context.CancelFunc
	serveErr   chan error
}

func newHost(gs *state.GlobalState, conf Config) (*host, error) {
	ln, err := net.Listen("tcp", conf.Address.String)
	if err != nil {
		return nil, errext.Fail(
			fmt.Errorf("couldn't listen on %s: %w", conf.Address.String, err),
			exitcodes.CannotStartServer,
			"another niiview host may be running, or choose another address with --address",
		)
	}

	h := &host{
		gs:       gs,
		logger:   gs.Logger,
		listener: ln,
		loopDone: make(chan struct{}),
		serveErr: make(chan error, 1),
	}

	panelURL := func(p *panel.Panel) string {
		return server.PanelURL(ln.Addr(), p.ID())
	}
	var revealer panel.Revealer = &panel.PrintRevealer{URL: panelURL, W: gs.Stdout}
	if conf.OpenBrowser.Bool {
		revealer = panel.NewBrowserRevealer(panelURL)
	}

	picker := dialog.NewTerminal(gs.FS, conf.Root.String, gs.Stdout)
	picker.In = gs.Stdin

	events := server.NewEventStream(h.logger)
	h.loop = eventloop.New(func(err error) { h.provider.ReportError(err) })
	h.provider, err = provider.New(gs.Ctx, provider.Options{
		Fs:       gs.FS,
		Loop:     h.loop,
		Picker:   picker,
		Notifier: events,
		Revealer: revealer,
		Observer: events,
		Logger:   h.logger,
	})
	if err != nil {
		_ = ln.Close()
		events.Close()
		return nil, err
	}

	h.server = server.New(server.Options{
		Provider:    h.provider,
		Events:      events,
		Logger:      h.logger,
		Root:        conf.Root.String,
		Compression: conf.Compression.Bool,
	})
	return h, nil
}

// start runs the event loop and serves until stop.
func (h *host) start() {
	var loopCtx, serverCtx context.Context
	loopCtx, h.stopLoop = context.WithCancel(context.Background())
	serverCtx, h.stopServer = context.WithCancel(context.Background())

	go func() {
		_ = h.loop.Run(loopCtx)
		close(h.loopDone)
	}()
	go func() {
		h.serveErr <- h.server.Serve(serverCtx, h.listener)
	}()

	h.logger.WithField("address", h.listener.Addr().String()).Debug("Host started")
}

// wait blocks until the command context is done, a signal is received, the
// server fails or, if any are given, every one of panels is disposed.
func (h *host) wait(ctx context.Context, panels ...*panel.Panel) error {
	sigC := make(chan os.Signal, 2)
	h.gs.SignalNotify(sigC, os.Interrupt, syscall.SIGTERM)
	defer h.gs.SignalStop(sigC)

	var allDisposed <-chan struct{}
	if len(panels) > 0 {
		ch := make(chan struct{})
		go func() {
			for _, p := range panels {
				<-p.Done()
			}
			close(ch)
		}()
		allDisposed = ch
	}

	select {
	case <-ctx.Done():
	case sig := <-sigC:
		h.logger.WithField("sig", sig).Debug("Stopping niiview in response to signal...")
	case <-allDisposed:
		h.logger.Debug("Every panel was closed")
	case err := <-h.serveErr:
		h.serveErr <- err
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errext.WithExitCodeIfNone(err, exitcodes.CannotStartServer)
		}
	}
	return nil
}

// stop disposes every panel, then stops the server and the event loop.
func (h *host) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := h.provider.Close(ctx); err != nil {
		h.logger.WithError(err).Warn("Couldn't dispose every panel")
	}

	h.stopServer()
	if err := <-h.serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.WithError(err).Debug("Server stopped with an error")
	}

	h.stopLoop()
	<-h.loopDone
}
