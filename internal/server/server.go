// Package server exposes the niiview host over HTTP: the host pages and
// WebSockets of the rendering surfaces, the lifecycle event stream and the
// REST API driving the provider.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/protocol"
	"github.com/niivue/niiview/internal/provider"
)

const (
	shutdownTimeout = 5 * time.Second
	closeDeadline   = time.Second
)

// Options configures a Server.
type Options struct {
	Provider *provider.Provider
	Events   *EventStream
	Logger   logrus.FieldLogger
	// Root resolves the relative paths received by the API.
	Root string
	// Compression enables per-message WebSocket compression and gzip pages.
	Compression bool
}

// Server is the HTTP front of the host.
type Server struct {
	opts     Options
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// New returns a server for opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			Subprotocols:      protocol.Subprotocols(),
			EnableCompression: opts.Compression,
		},
	}
}

// PanelURL returns the address of the page of the panel with the given id on
// a host listening at addr.
func PanelURL(addr net.Addr, id string) string {
	return fmt.Sprintf("http://%s/panels/%s", addr, id)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/ping", handlePing(s.logger)).Methods(http.MethodGet)
	r.Handle("/events", s.opts.Events).Methods(http.MethodGet)

	var page http.Handler = http.HandlerFunc(s.handlePage)
	if s.opts.Compression {
		page = gzhttp.GzipHandler(page)
	}
	r.Handle("/panels/{id}", page).Methods(http.MethodGet)
	r.HandleFunc("/panels/{id}/ws", s.handleSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/panels", s.handleListPanels).Methods(http.MethodGet)
	api.HandleFunc("/edit", s.handleEdit).Methods(http.MethodPost)
	api.HandleFunc("/open", s.handleOpen).Methods(http.MethodPost)
	api.HandleFunc("/compare", s.handleCompare).Methods(http.MethodPost)

	return withLoggingHandler(s.logger, r)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// event stream clients never go idle
	s.opts.Events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx) //nolint:contextcheck
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

func (s *Server) handlePage(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	page, err := s.opts.Provider.Page(r.Context(), id)
	if errors.Is(err, provider.ErrUnknownPanel) {
		http.NotFound(rw, r)
		return
	}
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Header().Set("Cache-Control", "no-store")
	if _, err := rw.Write(page); err != nil {
		s.logger.WithError(err).Debug("Error while writing the page")
	}
}

func (s *Server) handleSocket(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logger := s.logger.WithField("panel", id)

	if _, err := s.opts.Provider.Page(r.Context(), id); err != nil {
		http.NotFound(rw, r)
		return
	}

	ws, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// the upgrader already replied
		logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	if err := s.opts.Provider.Attach(r.Context(), id, panel.NewWebSocketConn(ws)); err != nil {
		logger.WithError(err).Warn("Rejecting surface")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(closeDeadline))
		_ = ws.Close()
		return
	}
	logger.WithField("subprotocol", ws.Subprotocol()).Debug("Surface connected")
}

type wrappedResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrappedResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush is needed by the event stream.
func (w *wrappedResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed by the WebSocket upgrade.
func (w *wrappedResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("the response writer doesn't support hijacking")
	}
	return h.Hijack()
}

// withLoggingHandler returns the middleware which logs response status for request.
func withLoggingHandler(l logrus.FieldLogger, next http.Handler) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wrapped := &wrappedResponseWriter{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		l.WithField("status", wrapped.status).Debugf("%s %s", r.Method, r.URL.Path)
	}
}

func handlePing(logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Add("Content-Type", "text/plain; charset=utf-8")
		if _, err := fmt.Fprint(rw, "ok"); err != nil {
			logger.WithError(err).Error("Error while printing ok")
		}
	})
}
