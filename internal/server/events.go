package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/panel"
)

// Lifecycle event names.
const (
	PanelCreatedEvent  = "panelCreated"
	PanelAttachedEvent = "panelAttached"
	PanelDisposedEvent = "panelDisposed"
	NotificationEvent  = "notification"
)

const eventsChannel = "events"

// Notification is the payload of a notification event.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// EventStream publishes panel lifecycle events and host notifications as
// server-sent events.
type EventStream struct {
	*sse.Server
	logger logrus.FieldLogger
	id     atomic.Int64
}

var _ panel.Observer = (*EventStream)(nil)

// NewEventStream returns an event stream without replay: clients only get the
// events published after they connect.
func NewEventStream(logger logrus.FieldLogger) *EventStream {
	srv := sse.New()
	srv.AutoReplay = false
	srv.CreateStream(eventsChannel)
	return &EventStream{Server: srv, logger: logger}
}

// PanelCreated implements panel.Observer.
func (es *EventStream) PanelCreated(info panel.Info) { es.publish(PanelCreatedEvent, info) }

// PanelAttached implements panel.Observer.
func (es *EventStream) PanelAttached(info panel.Info) { es.publish(PanelAttachedEvent, info) }

// PanelDisposed implements panel.Observer.
func (es *EventStream) PanelDisposed(info panel.Info) { es.publish(PanelDisposedEvent, info) }

// Notify publishes err as an error notification.
func (es *EventStream) Notify(err error) {
	es.publish(NotificationEvent, Notification{Level: logrus.ErrorLevel.String(), Message: err.Error()})
}

func (es *EventStream) publish(name string, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		es.logger.Error(err)
		return
	}

	id := strconv.FormatInt(es.id.Add(1), 10)
	es.Publish(eventsChannel, &sse.Event{Event: []byte(name), Data: buf, ID: []byte(id)})
}

func (es *EventStream) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	values.Set("stream", eventsChannel)
	r.URL.RawQuery = values.Encode()

	es.Server.ServeHTTP(rw, r)
}
