package session

import (
	"time"

	"github.com/wyldlands/wyldlands/internal/token"
)

// Protocol identifies which wire protocol a connection was admitted on.
// Immutable for the life of the session.
type Protocol int

const (
	ProtocolLineTerminal Protocol = iota
	ProtocolFramedMessage
)

func (p Protocol) String() string {
	switch p {
	case ProtocolLineTerminal:
		return "LINE_TERMINAL"
	case ProtocolFramedMessage:
		return "FRAMED_MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// State is the tagged variant from spec.md §3. It is a sealed interface
// rather than a struct of optional fields on purpose: a boolean-flags
// encoding would let illegal combinations (e.g. an Editing buffer on a
// Connecting session) type-check. Each concrete type below carries exactly
// the payload that is valid for that branch, nothing else.
type State interface {
	Kind() Kind
	isState()
}

// Kind is a lightweight tag used for logging and for the legality table in
// registry.go. It is derived from, not the source of truth for, the actual
// state — the State interface is that source of truth.
type Kind int

const (
	KindConnecting Kind = iota
	KindAuthenticating
	KindAuthenticated
	KindDisconnected
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindConnecting:
		return "CONNECTING"
	case KindAuthenticating:
		return "AUTHENTICATING"
	case KindAuthenticated:
		return "AUTHENTICATED"
	case KindDisconnected:
		return "DISCONNECTED"
	case KindClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connecting is the pre-handshake state assigned at connect time.
type Connecting struct{}

func (Connecting) Kind() Kind { return KindConnecting }
func (Connecting) isState()   {}

// Authenticating means credentials are in flight to the world server.
type Authenticating struct{}

func (Authenticating) Kind() Kind { return KindAuthenticating }
func (Authenticating) isState()   {}

// Authenticated holds the account and the gateway-side input-buffering
// sub-state (Playing or Editing).
type Authenticated struct {
	AccountID string
	Mode      InputMode
}

func (Authenticated) Kind() Kind { return KindAuthenticated }
func (Authenticated) isState()   {}

// Disconnected records enough to resume the session on reconnect: the
// exact prior state to restore to, the single-use token that authorizes
// resumption, and when the disconnect happened (for reaper bookkeeping).
type Disconnected struct {
	Previous       State
	Token          token.Token
	DisconnectedAt time.Time
}

func (Disconnected) Kind() Kind { return KindDisconnected }
func (Disconnected) isState()   {}

// Closed is terminal; no further transition is legal out of it.
type Closed struct{}

func (Closed) Kind() Kind { return KindClosed }
func (Closed) isState()   {}

// InputMode is the gateway-side sub-state of an Authenticated session,
// controlling whether bytes are buffered as lines or as keystrokes. It is
// a separate sealed interface from State for the same reason: Editing's
// buffer and title must not be representable outside of Playing/Editing.
type InputMode interface {
	isInputMode()
}

// Playing is the steady-state input mode: complete lines are forwarded as
// they arrive.
type Playing struct{}

func (Playing) isInputMode() {}

// Editing accumulates keystrokes locally into buffer until a save/cancel
// chord arrives. OriginOpaqueHandle is returned verbatim to the world on
// finish; the gateway never interprets it.
type Editing struct {
	Title              string
	Buffer             string
	OriginOpaqueHandle string
}

func (Editing) isInputMode() {}
