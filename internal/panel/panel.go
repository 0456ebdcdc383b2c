// Package panel implements the host side of a rendering surface: a panel owns
// the connection to one surface, dispatches the messages it receives to
// per-type handlers and pushes messages back to it.
package panel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mstoykov/k6-taskqueue-lib/taskqueue"
	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/protocol"
)

// Panel kinds.
const (
	KindDefault = "niiview.default"
	KindWebview = "niiview.webview"
	KindCompare = "niiview.compare"
)

var (
	// ErrNotAttached is returned when posting to a panel whose surface hasn't
	// connected yet.
	ErrNotAttached = errors.New("panel surface is not attached")
	// ErrDisposed is returned when using a panel after its disposal.
	ErrDisposed = errors.New("panel is disposed")
	// ErrAlreadyAttached is returned when a second surface tries to attach.
	ErrAlreadyAttached = errors.New("panel surface is already attached")
)

// Info describes a panel.
type Info struct {
	ID       string `json:"id" yaml:"id"`
	Kind     string `json:"kind" yaml:"kind"`
	Title    string `json:"title" yaml:"title"`
	Resource string `json:"resource" yaml:"resource"`
	Attached bool   `json:"attached" yaml:"attached"`
}

// Panel is the host's handle on one rendering surface.
//
// On, OnReady, OnDidDispose, Dispose and Attach must be called on the event
// loop. Post and Queue can be called from any goroutine and never block.
type Panel struct {
	id       string
	kind     string
	title    string
	resource string
	page     []byte

	logger   logrus.FieldLogger
	onError  func(error)
	observer Observer

	listeners      *listeners
	disposeHandler []func()

	mu       sync.Mutex
	conn     Conn
	tq       *taskqueue.TaskQueue
	outbox   []protocol.Message
	wakeup   chan struct{}
	done     chan struct{}
	broken   bool // the connection failed, disposal is queued
	disposed bool
}

func newPanel(
	loop *eventloop.EventLoop, logger logrus.FieldLogger, observer Observer, onError func(error),
	id, kind, title, resource string,
) *Panel {
	if onError == nil {
		onError = func(error) {}
	}
	return &Panel{
		id:        id,
		kind:      kind,
		title:     title,
		resource:  resource,
		logger:    logger.WithField("panel", id),
		onError:   onError,
		observer:  observer,
		listeners: newListeners(),
		tq:        taskqueue.New(loop.RegisterCallback),
		wakeup:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// ID returns the unique id of the panel.
func (p *Panel) ID() string { return p.id }

// Kind returns the panel kind.
func (p *Panel) Kind() string { return p.kind }

// Title returns the panel title.
func (p *Panel) Title() string { return p.title }

// Resource returns the identity of the resource the panel was opened for.
func (p *Panel) Resource() string { return p.resource }

// Page returns the host page served to the surface.
func (p *Panel) Page() []byte { return p.page }

// Info returns a snapshot of the panel's description.
func (p *Panel) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ID:       p.id,
		Kind:     p.kind,
		Title:    p.title,
		Resource: p.resource,
		Attached: p.conn != nil && !p.disposed,
	}
}

// Disposed reports whether the panel was disposed.
func (p *Panel) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Done is closed when the panel is disposed.
func (p *Panel) Done() <-chan struct{} {
	return p.done
}

// On adds a handler for messages of type t sent by the surface.
func (p *Panel) On(t string, h Handler) error {
	return p.listeners.add(t, h)
}

// OnReady adds a handler that runs only on the first ready message.
func (p *Panel) OnReady(fn func() error) error {
	var fired bool
	return p.On(protocol.TypeReady, func(protocol.Message) error {
		if fired {
			p.logger.Debug("Ignoring repeated ready")
			return nil
		}
		fired = true
		return fn()
	})
}

// OnDidDispose registers fn to be called once, on the event loop, when the
// panel is disposed. If it already is, fn is called right away.
func (p *Panel) OnDidDispose(fn func()) {
	if p.Disposed() {
		fn()
		return
	}
	p.disposeHandler = append(p.disposeHandler, fn)
}

// Post queues msg for the surface. Messages are written in the order they were
// posted. A surface that reads slowly never blocks the caller.
func (p *Panel) Post(msg protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.disposed, p.broken:
		return ErrDisposed
	case p.conn == nil:
		return ErrNotAttached
	}
	p.outbox = append(p.outbox, msg)

	select {
	case p.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Queue runs task on the event loop after every task queued before it. An
// error returned by task is reported to the host and doesn't affect later
// tasks. It returns false if the panel is disposed.
func (p *Panel) Queue(task func() error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return false
	}
	p.tq.Queue(func() error {
		if err := task(); err != nil {
			p.onError(err)
		}
		return nil
	})
	return true
}

// Attach connects the surface to the panel and starts exchanging messages.
func (p *Panel) Attach(conn Conn) error {
	p.mu.Lock()
	switch {
	case p.disposed:
		p.mu.Unlock()
		return ErrDisposed
	case p.conn != nil:
		p.mu.Unlock()
		return ErrAlreadyAttached
	}
	p.conn = conn
	p.mu.Unlock()

	go p.recvLoop(conn)
	go p.sendLoop(conn)

	p.logger.Debug("Surface attached")
	if p.observer != nil {
		p.observer.PanelAttached(p.Info())
	}
	return nil
}

// Dispose closes the surface and notifies the disposal handlers. Only the
// first call has an effect.
func (p *Panel) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.outbox = nil
	close(p.done)
	p.tq.Close()
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			p.logger.WithError(err).Debug("Error while closing the surface connection")
		}
	}

	p.logger.Debug("Panel disposed")
	handlers := p.disposeHandler
	p.disposeHandler = nil
	for _, fn := range handlers {
		fn()
	}
	if p.observer != nil {
		p.observer.PanelDisposed(p.Info())
	}
}

func (p *Panel) recvLoop(conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrInvalidBody) {
				p.logger.WithError(err).Warn("Dropping undecodable message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.WithError(err).Warn("Surface connection closed unexpectedly")
			}
			p.connectionLost()
			return
		}

		if !p.Queue(func() error { return p.dispatch(msg) }) {
			return
		}
	}
}

// connectionLost is called from the I/O goroutines. Posting fails from then
// on, and the disposal itself runs on the event loop.
func (p *Panel) connectionLost() {
	p.mu.Lock()
	if p.broken || p.disposed {
		p.mu.Unlock()
		return
	}
	p.broken = true
	p.outbox = nil
	p.mu.Unlock()

	p.Queue(func() error {
		p.Dispose()
		return nil
	})
}

func (p *Panel) popOutbox() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.outbox
	p.outbox = nil
	return msgs
}

func (p *Panel) sendLoop(conn Conn) {
	for {
		select {
		case <-p.wakeup:
		case <-p.done:
			return
		}

		for _, msg := range p.popOutbox() {
			if err := conn.WriteMessage(msg); err != nil {
				p.logger.WithError(err).Debug("Couldn't write to the surface")
				p.connectionLost()
				return
			}
			p.logger.WithField("message", msg.String()).Debug("Sent")
		}
	}
}

func (p *Panel) dispatch(msg protocol.Message) error {
	if err := protocol.Validate(msg); err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			p.logger.WithField("type", msg.Type).Debug("Ignoring message of unknown type")
		} else {
			p.logger.WithError(err).Warn("Ignoring invalid message")
		}
		return nil
	}
	p.logger.WithField("message", msg.String()).Debug("Received")

	var errs []error
	for _, h := range p.listeners.all(msg.Type) {
		if err := h(msg); err != nil {
			errs = append(errs, fmt.Errorf("handling %s: %w", msg.Type, err))
		}
	}
	return errors.Join(errs...)
}
