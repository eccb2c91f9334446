// Package token implements the reconnection token described in spec.md §3
// and §4.7: a time-limited, single-use credential that lets a new
// transport connection adopt an existing, disconnected Session.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/wyldlands/wyldlands/internal/ids"
)

// SecretSize is the width of the random secret in bytes. 32 bytes (256
// bits) exceeds spec.md's 192-bit floor.
const SecretSize = 32

// Token is the decoded form of a reconnection token.
type Token struct {
	SessionID ids.SessionId
	Secret    [SecretSize]byte
	ExpiresAt time.Time
}

// ErrMalformed is returned by Decode when the text does not parse as a
// token produced by Encode. It is never returned for a structurally valid
// but expired token — expiry is a separate, time-dependent check via
// IsExpired, kept out of Decode so decoding itself stays total and
// side-effect-free as spec.md §3 requires.
var ErrMalformed = errors.New("malformed reconnection token")

const encodedLen = 16 /* session id */ + SecretSize + 8 /* expiry unix seconds */

// New generates a fresh token for sessionID, valid for ttl from now. The
// secret comes from crypto/rand: the pack carries no token/session-secret
// library, and spec.md §9 explicitly calls for "a cryptographically strong
// RNG", which is exactly what the standard library's CSPRNG is for — this
// is the one place in the module stdlib crypto is the right tool rather
// than a concession.
func New(sessionID ids.SessionId, ttl time.Duration, now time.Time) (Token, error) {
	var secret [SecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return Token{}, fmt.Errorf("generating token secret: %w", err)
	}
	return Token{
		SessionID: sessionID,
		Secret:    secret,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Encode produces the stable text form of t. Any two tokens that decode to
// the same (SessionId, secret) pair are equivalent — Encode is otherwise
// deterministic in its field layout, not in a signing sense.
func Encode(t Token) string {
	buf := make([]byte, encodedLen)
	copy(buf[0:16], t.SessionID[:])
	copy(buf[16:16+SecretSize], t.Secret[:])
	binary.BigEndian.PutUint64(buf[16+SecretSize:], uint64(t.ExpiresAt.Unix()))
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode parses the text form produced by Encode. It never fails with
// Expired — only with ErrMalformed for input that isn't shaped like a
// token. Callers check expiry separately via IsExpired, so that a
// malformed token and an expired token can still be told apart
// internally even though spec.md §7 asks that both be surfaced to the
// client identically.
func Decode(s string) (Token, error) {
	buf, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(buf) != encodedLen {
		return Token{}, ErrMalformed
	}

	var t Token
	copy(t.SessionID[:], buf[0:16])
	copy(t.Secret[:], buf[16:16+SecretSize])
	t.ExpiresAt = time.Unix(int64(binary.BigEndian.Uint64(buf[16+SecretSize:])), 0).UTC()
	return t, nil
}

// IsExpired reports whether t is no longer valid as of now.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// SecretEquals compares secrets in constant time, as spec.md §9 requires
// ("use constant-time comparison for redemption").
func (t Token) SecretEquals(other Token) bool {
	return subtle.ConstantTimeCompare(t.Secret[:], other.Secret[:]) == 1
}
