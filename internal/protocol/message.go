// Package protocol defines the closed message vocabulary exchanged between the
// niiview host and its rendering surfaces, and the codecs used on the wire.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Message types. ready, addOverlay and addImages travel from a panel to the
// host; initCanvas, addImage and overlay replies travel from the host to a
// panel.
const (
	TypeReady      = "ready"
	TypeInitCanvas = "initCanvas"
	TypeAddImage   = "addImage"
	TypeAddOverlay = "addOverlay"
	TypeAddImages  = "addImages"

	// DefaultOverlayType is the reply type used when an addOverlay request
	// doesn't name one.
	DefaultOverlayType = "overlay"
)

var (
	// ErrUnknownType is returned for messages outside of the vocabulary.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidBody is returned for known messages with a malformed body.
	ErrInvalidBody = errors.New("invalid message body")
	// ErrMalformed is returned when a frame isn't a {type, body} envelope.
	ErrMalformed = errors.New("malformed message envelope")
)

// Message is the {type, body} envelope.
type Message struct {
	Type string `json:"type" msgpack:"type"`
	Body Body   `json:"body" msgpack:"body"`
}

// Body holds the union of every body field in the vocabulary; which ones are
// set depends on the message type.
type Body struct {
	N     *int   `json:"n,omitempty" msgpack:"n,omitempty"`
	Data  []byte `json:"data,omitempty" msgpack:"data,omitempty"`
	URI   string `json:"uri,omitempty" msgpack:"uri,omitempty"`
	Index *int   `json:"index,omitempty" msgpack:"index,omitempty"`
	Type  string `json:"type,omitempty" msgpack:"type,omitempty"`
}

// Ready is sent by a surface once it can accept pushes.
func Ready() Message {
	return Message{Type: TypeReady}
}

// InitCanvas prepares a surface for n side-by-side views.
func InitCanvas(n int) Message {
	return Message{Type: TypeInitCanvas, Body: Body{N: &n}}
}

// AddImage pushes an image to append as a new view. data may be nil when the
// surface already holds the bytes.
func AddImage(uri string, data []byte) Message {
	return Message{Type: TypeAddImage, Body: Body{URI: uri, Data: data}}
}

// AddOverlay is the request of a surface to pick an overlay for the view at
// index; the reply will have the type replyType.
func AddOverlay(replyType string, index int) Message {
	return Message{Type: TypeAddOverlay, Body: Body{Type: replyType, Index: &index}}
}

// AddImages is the request of a surface to pick more images.
func AddImages() Message {
	return Message{Type: TypeAddImages}
}

// OverlayReply answers the addOverlay request req with the chosen file.
func OverlayReply(req Message, uri string, data []byte) Message {
	typ := req.Body.Type
	if typ == "" {
		typ = DefaultOverlayType
	}
	body := Body{URI: uri, Data: data}
	if req.Body.Index != nil {
		index := *req.Body.Index
		body.Index = &index
	}
	return Message{Type: typ, Body: body}
}

// Validate checks msg against the vocabulary. Unknown types wrap ErrUnknownType
// and must be ignored by receivers.
func Validate(msg Message) error {
	switch msg.Type {
	case TypeReady, TypeAddImages:
		return nil
	case TypeInitCanvas:
		if msg.Body.N == nil || *msg.Body.N < 0 {
			return fmt.Errorf("%w: %s needs a non-negative n", ErrInvalidBody, msg.Type)
		}
	case TypeAddImage:
		if msg.Body.URI == "" {
			return fmt.Errorf("%w: %s needs an uri", ErrInvalidBody, msg.Type)
		}
	case TypeAddOverlay:
		if msg.Body.Index != nil && *msg.Body.Index < 0 {
			return fmt.Errorf("%w: %s index must not be negative", ErrInvalidBody, msg.Type)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownType, msg.Type)
	}
	return nil
}

// String describes the message without its payload bytes.
func (msg Message) String() string {
	var b strings.Builder
	b.WriteString(msg.Type)
	b.WriteByte('{')
	var parts []string
	if msg.Body.N != nil {
		parts = append(parts, fmt.Sprintf("n=%d", *msg.Body.N))
	}
	if msg.Body.URI != "" {
		parts = append(parts, "uri="+msg.Body.URI)
	}
	if msg.Body.Data != nil {
		parts = append(parts, fmt.Sprintf("data=%dB", len(msg.Body.Data)))
	}
	if msg.Body.Index != nil {
		parts = append(parts, fmt.Sprintf("index=%d", *msg.Body.Index))
	}
	if msg.Body.Type != "" {
		parts = append(parts, "type="+msg.Body.Type)
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteByte('}')
	return b.String()
}
