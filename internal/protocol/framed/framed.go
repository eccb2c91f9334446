// Package framed implements the framed-message Protocol Adapter of
// spec.md §4.1 over WebSocket: structured JSON frames in, typed JSON
// frames out, with optional per-session keystroke mode and a
// side-channel for non-text payloads (e.g. terminal resize).
package framed

import (
	"encoding/json"
	"fmt"

	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/protocol"
)

// clientFrame is the wire shape of one inbound WebSocket text message.
// Type discriminates which InputEvent it decodes to; Payload's shape
// depends on Type.
type clientFrame struct {
	Type string `json:"type"`

	Line string `json:"line,omitempty"`

	Codepoint int32 `json:"codepoint,omitempty"`
	Control   string `json:"control,omitempty"`

	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// KeystrokeMode lets the client opt in per spec.md §4.1 ("optional
	// for framed-message, where the client may opt in per edit
	// session"). Decode latches it: once any frame sets it, Capabilities
	// reports keystroke mode for the rest of the connection.
	KeystrokeMode bool `json:"keystroke_mode,omitempty"`
}

// serverFrame is the wire shape of one outbound WebSocket text message.
type serverFrame struct {
	Text    string `json:"text"`
	Kind    string `json:"kind"`
	Channel string `json:"channel,omitempty"`
}

// Adapter decodes/encodes one WebSocket connection's JSON frames. Unlike
// line.Adapter it has no internal buffering to carry across calls: each
// call to Decode corresponds to exactly one already-delimited WebSocket
// text message, since gorilla/websocket delivers whole messages rather
// than a raw byte stream.
type Adapter struct {
	keystrokeOptedIn bool
}

// New builds a framed-message adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{
		SupportsANSI:               false,
		SupportsStructuredChannels: true,
		SupportsKeystrokeMode:      a.keystrokeOptedIn,
	}
}

// Decode parses one WebSocket text message into its InputEvent(s).
func (a *Adapter) Decode(chunk []byte) ([]protocol.InputEvent, error) {
	var frame clientFrame
	if err := json.Unmarshal(chunk, &frame); err != nil {
		return nil, &protocol.Error{
			Kind:        protocol.ErrorKindMalformedFrame,
			Message:     fmt.Sprintf("malformed client frame: %v", err),
			Recoverable: true,
		}
	}

	if frame.KeystrokeMode {
		a.keystrokeOptedIn = true
	}

	switch frame.Type {
	case "line":
		return []protocol.InputEvent{{Kind: protocol.InputLine, Line: frame.Line}}, nil
	case "keystroke":
		return []protocol.InputEvent{{Kind: protocol.InputKeystroke, Codepoint: rune(frame.Codepoint)}}, nil
	case "control":
		op, err := parseControlOp(frame.Control)
		if err != nil {
			return nil, &protocol.Error{Kind: protocol.ErrorKindMalformedFrame, Message: err.Error(), Recoverable: true}
		}
		return []protocol.InputEvent{{Kind: protocol.InputControl, Control: op}}, nil
	case "side_channel":
		return []protocol.InputEvent{{
			Kind:               protocol.InputSideChannel,
			SideChannelName:    frame.Channel,
			SideChannelPayload: frame.Payload,
		}}, nil
	default:
		return nil, &protocol.Error{
			Kind:        protocol.ErrorKindUnsupportedFrame,
			Message:     fmt.Sprintf("unknown frame type %q", frame.Type),
			Recoverable: true,
		}
	}
}

func parseControlOp(s string) (protocol.ControlOp, error) {
	switch s {
	case "keepalive":
		return protocol.ControlKeepalive, nil
	case "close":
		return protocol.ControlClose, nil
	default:
		return 0, fmt.Errorf("unknown control op %q", s)
	}
}

// Encode renders rec as one JSON text message.
func (a *Adapter) Encode(rec output.Record) ([]byte, error) {
	frame := serverFrame{Text: rec.Text, Kind: rec.Kind.String(), Channel: rec.Channel}
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshaling server frame: %w", err)
	}
	return body, nil
}
