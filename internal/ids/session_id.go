// Package ids holds the opaque identifiers shared across the gateway and
// the world server.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionId is an opaque 128-bit identifier for a Session. It is generated
// once at connect time and never changes for the life of the session,
// including across disconnect/reconnect.
type SessionId uuid.UUID

// NewSessionId generates a new random SessionId.
func NewSessionId() SessionId {
	return SessionId(uuid.New())
}

// String returns the canonical text form, e.g. for logging.
func (id SessionId) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value (never assigned).
func (id SessionId) IsZero() bool {
	return id == SessionId{}
}

// ParseSessionId parses the canonical text form produced by String.
func ParseSessionId(s string) (SessionId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionId{}, fmt.Errorf("parsing session id %q: %w", s, err)
	}
	return SessionId(u), nil
}

// MarshalText implements encoding.TextMarshaler so SessionId can be used
// directly as a map key or struct field in YAML/JSON-encoded RPC payloads.
func (id SessionId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *SessionId) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
