package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
)

// WebSocket subprotocols naming the codecs.
const (
	JSONSubprotocol    = "niiview.json"
	MsgpackSubprotocol = "niiview.msgpack"
)

// Codec turns messages into frames and back.
type Codec interface {
	// Subprotocol is the WebSocket subprotocol selecting this codec.
	Subprotocol() string
	// Binary reports whether frames are binary rather than text.
	Binary() bool
	Marshal(msg Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

// JSON is the default codec; byte payloads are base64 encoded.
var JSON Codec = jsonCodec{} //nolint:gochecknoglobals

// Msgpack carries byte payloads as raw binary.
var Msgpack Codec = msgpackCodec{} //nolint:gochecknoglobals

// Subprotocols lists the supported subprotocols in order of preference.
func Subprotocols() []string {
	return []string{MsgpackSubprotocol, JSONSubprotocol}
}

// CodecFor returns the codec for a negotiated subprotocol, JSON when none was
// negotiated.
func CodecFor(subprotocol string) Codec {
	if subprotocol == MsgpackSubprotocol {
		return Msgpack
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return JSONSubprotocol }
func (jsonCodec) Binary() bool        { return false }

func (jsonCodec) Marshal(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	var msg Message
	if !gjson.ValidBytes(data) {
		return msg, fmt.Errorf("%w: not JSON", ErrMalformed)
	}
	if typ := gjson.GetBytes(data, "type"); typ.Type != gjson.String {
		return msg, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return msg, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Subprotocol() string { return MsgpackSubprotocol }
func (msgpackCodec) Binary() bool        { return true }

func (msgpackCodec) Marshal(msg Message) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

func (msgpackCodec) Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return msg, nil
}
