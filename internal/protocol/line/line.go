// Package line implements the line-terminal Protocol Adapter of
// spec.md §4.1: newline-delimited UTF-8 commands in, styled text out.
package line

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/protocol"
)

// Adapter decodes newline-terminated lines and encodes OutputRecords as
// plain lines. Keystroke mode (spec.md §4.5's edit-mode emulation for
// pure line protocols) is handled one layer up, in the gateway's input
// mode engine — this adapter only ever produces InputLine events; the
// sentinel-line save/cancel detection belongs to the caller, which knows
// whether the session is currently in Editing.
type Adapter struct {
	buf []byte // partial line carried across Decode calls
}

// New builds a line adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{
		SupportsANSI:               true,
		SupportsStructuredChannels: false,
		SupportsKeystrokeMode:      true,
	}
}

// Decode splits chunk on '\n', yielding one InputLine event per complete
// line and carrying any trailing partial line forward to the next call.
// Invalid UTF-8 is dropped with a recoverable ProtocolError rather than
// failing the whole chunk, per spec.md §4.1 ("invalid sequences are
// dropped with a single-line error to the client").
func (a *Adapter) Decode(chunk []byte) ([]protocol.InputEvent, error) {
	a.buf = append(a.buf, chunk...)

	var events []protocol.InputEvent
	for {
		idx := bytes.IndexByte(a.buf, '\n')
		if idx < 0 {
			break
		}
		raw := a.buf[:idx]
		a.buf = a.buf[idx+1:]

		line := bytes.TrimRight(raw, "\r")
		if !utf8.Valid(line) {
			return events, &protocol.Error{
				Kind:        protocol.ErrorKindMalformedFrame,
				Message:     "invalid UTF-8 in input line",
				Recoverable: true,
			}
		}
		events = append(events, protocol.InputEvent{Kind: protocol.InputLine, Line: string(line)})
	}
	return events, nil
}

// Encode renders rec as a single terminated line. Kind is rendered as a
// plain-text prefix since this adapter has no structured side channel.
func (a *Adapter) Encode(rec output.Record) ([]byte, error) {
	var prefix string
	switch rec.Kind {
	case output.KindNormal:
		prefix = ""
	case output.KindPrompt:
		prefix = ""
	default:
		prefix = fmt.Sprintf("[%s] ", rec.Kind)
	}

	return []byte(prefix + rec.Text + "\n"), nil
}
