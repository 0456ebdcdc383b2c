// Package eventloop implements the single-threaded scheduler of the niiview
// host. Every panel handler, disposal notification and registry mutation runs
// on the loop goroutine; blocking I/O happens elsewhere and reports back through
// RegisterCallback.
package eventloop

import (
	"context"
	"sync"
)

// EventLoop implements an event loop with a queue of callbacks that are run one
// at a time, in the order they were queued.
type EventLoop struct {
	lock                sync.Mutex
	queue               []func() error
	wakeupCh            chan struct{}
	registeredCallbacks int
	onError             func(error)
}

// New returns a new event loop. Errors returned by callbacks are handed to
// onError and never stop the loop; a nil onError drops them.
func New(onError func(error)) *EventLoop {
	if onError == nil {
		onError = func(error) {}
	}
	return &EventLoop{
		wakeupCh: make(chan struct{}, 1),
		onError:  onError,
	}
}

func (e *EventLoop) wakeup() {
	select {
	case e.wakeupCh <- struct{}{}:
	default:
	}
}

// RegisterCallback signals to the event loop that you are going to do some
// asynchronous work off the main thread and that you may need to execute some
// code back on the main thread when you are done. The returned function must be
// called exactly once; calling it queues the given callback on the loop. It is
// safe to call from any goroutine.
func (e *EventLoop) RegisterCallback() func(func() error) {
	e.lock.Lock()
	var callbackCalled bool
	e.registeredCallbacks++
	e.lock.Unlock()

	return func(f func() error) {
		e.lock.Lock()
		defer e.lock.Unlock()
		if callbackCalled {
			panic("RegisterCallback's returned function was called twice")
		}
		callbackCalled = true
		e.queue = append(e.queue, f)
		e.registeredCallbacks--
		e.wakeup()
	}
}

// registered returns the number of registered callbacks that haven't been
// called yet.
func (e *EventLoop) registered() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.registeredCallbacks
}

func (e *EventLoop) popAll() []func() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	queue := e.queue
	e.queue = make([]func() error, 0, len(queue))
	return queue
}

// Run executes queued callbacks until ctx is done. Callbacks still queued or
// registered at that point are abandoned.
func (e *EventLoop) Run(ctx context.Context) error {
	for {
		queue := e.popAll()
		if len(queue) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wakeupCh:
			}
			continue
		}

		for _, f := range queue {
			if err := f(); err != nil {
				e.onError(err)
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine itself.
func (e *EventLoop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	e.RegisterCallback()(func() error {
		result <- fn()
		return nil
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
