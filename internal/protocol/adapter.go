// Package protocol defines the Protocol Adapter contract of spec.md §4.1:
// translating raw transport bytes to normalized input events and typed
// output records to protocol-specific bytes, without ever touching
// session state directly.
package protocol

import (
	"github.com/wyldlands/wyldlands/internal/output"
)

// InputEventKind tags the variant of an InputEvent.
type InputEventKind int

const (
	InputLine InputEventKind = iota
	InputKeystroke
	InputControl
	InputSideChannel
)

// ControlOp names a control-plane input event, distinct from ordinary
// text: keepalive pings, explicit close requests, and the like.
type ControlOp int

const (
	ControlKeepalive ControlOp = iota
	ControlClose
)

// InputEvent is the adapter's normalized output: one decoded unit from
// the client, tagged by kind. It is a struct-with-kind rather than a
// sealed interface (unlike session.State) because its fields are cheap
// scalars read by exactly one dispatch switch in the input-mode engine,
// not payload-bearing variants that could be illegally combined.
type InputEvent struct {
	Kind InputEventKind

	Line      string // valid when Kind == InputLine
	Codepoint rune   // valid when Kind == InputKeystroke; <0 for a named control key
	Control   ControlOp

	SideChannelName    string
	SideChannelPayload []byte
}

// Capabilities describes what an adapter's underlying protocol can do, so
// the input-mode engine and world router can adapt (e.g. emulate
// keystroke editing over a line-only protocol).
type Capabilities struct {
	SupportsANSI               bool
	SupportsStructuredChannels bool
	SupportsKeystrokeMode      bool
}

// ErrorKind tags a ProtocolError's recoverability.
type ErrorKind int

const (
	ErrorKindMalformedFrame ErrorKind = iota
	ErrorKindUnsupportedFrame
	ErrorKindTransport
)

// Error is returned by Decode on malformed or unsupported input.
// Recoverable errors reset the frame decoder and may be shown to the
// client as a short message; non-recoverable ones close the connection.
type Error struct {
	Kind        ErrorKind
	Message     string
	Recoverable bool
}

func (e *Error) Error() string { return e.Message }

// Adapter translates between raw transport bytes and the gateway's
// normalized representations. Implementations: line (line-terminal) and
// framed (framed-message/WebSocket).
type Adapter interface {
	// Decode consumes newly read bytes and returns zero or more decoded
	// input events. It is side-effect-free with respect to the Session
	// Registry — the caller is responsible for acting on the events.
	Decode(chunk []byte) ([]InputEvent, error)

	// Encode renders rec as protocol-specific bytes, ready to write to
	// the connection. Idempotent and pure.
	Encode(rec output.Record) ([]byte, error)

	// Capabilities reports what this adapter instance supports.
	Capabilities() Capabilities
}
