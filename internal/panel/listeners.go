package panel

import (
	"fmt"

	"github.com/niivue/niiview/internal/protocol"
)

// Handler handles a message received from a surface. It runs on the event loop.
type Handler func(msg protocol.Message) error

// listeners keeps track of the handlers for each message type a surface can
// send. Handlers run in the order they were added.
type listeners struct {
	byType map[string][]Handler
}

func newListeners() *listeners {
	return &listeners{
		byType: map[string][]Handler{
			protocol.TypeReady:      nil,
			protocol.TypeAddOverlay: nil,
			protocol.TypeAddImages:  nil,
		},
	}
}

// add adds a handler to the handler list of t
func (l *listeners) add(t string, h Handler) error {
	if _, ok := l.byType[t]; !ok {
		return fmt.Errorf("unknown event type: %s", t)
	}
	l.byType[t] = append(l.byType[t], h)
	return nil
}

// all returns the handlers of t
func (l *listeners) all(t string) []Handler {
	return l.byType[t]
}
