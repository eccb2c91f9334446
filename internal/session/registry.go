package session

import (
	"sync"
	"time"

	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/token"
)

// DisconnectReason distinguishes a transport drop that the client may
// resume from an administrative action that must not be resumable, per
// spec.md §4.7 ("disconnect(s, reason)").
type DisconnectReason int

const (
	ReasonRecoverable DisconnectReason = iota
	ReasonAdminForce
	ReasonLogout
)

// Session is a point-in-time, caller-owned copy of a registry entry. It is
// safe to read and hold onto — mutating it has no effect on the registry.
type Session struct {
	ID           ids.SessionId
	ClientAddr   string
	Protocol     Protocol
	State        State
	CreatedAt    time.Time
	LastActivity time.Time
	Metadata     map[string]string
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// Registry is the Session Registry of spec.md §5: the single authority for
// session lifecycle and state transitions. Every entry has its own lock so
// that operations on distinct sessions never contend; the top-level
// RWMutex only guards the existence of entries in the map itself.
type Registry struct {
	mu           sync.RWMutex
	entries      map[ids.SessionId]*entry
	reconnectTTL time.Duration
	now          func() time.Time
}

// NewRegistry builds an empty Registry. reconnectTTL is the lifetime given
// to reconnection tokens minted by Disconnect.
func NewRegistry(reconnectTTL time.Duration) *Registry {
	return &Registry{
		entries:      make(map[ids.SessionId]*entry),
		reconnectTTL: reconnectTTL,
		now:          time.Now,
	}
}

func (r *Registry) lookup(id ids.SessionId) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Create admits a new connection and returns its freshly assigned id in
// the Connecting state, per spec.md §4.1.
func (r *Registry) Create(protocol Protocol, clientAddr string) ids.SessionId {
	id := ids.NewSessionId()
	now := r.now()

	r.mu.Lock()
	r.entries[id] = &entry{session: Session{
		ID:           id,
		ClientAddr:   clientAddr,
		Protocol:     protocol,
		State:        Connecting{},
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     make(map[string]string),
	}}
	r.mu.Unlock()

	return id
}

// legalTransition implements the legality table of spec.md §4.2. It
// operates on Kind rather than State because the payload of the proposed
// State (e.g. which AccountID, which InputMode) is the caller's business,
// not the table's — the table only constrains shape, not content.
func legalTransition(from, to Kind) bool {
	switch from {
	case KindConnecting:
		switch to {
		case KindAuthenticating, KindDisconnected, KindClosed:
			return true
		}
	case KindAuthenticating:
		switch to {
		case KindAuthenticated, KindDisconnected, KindClosed:
			return true
		}
	case KindAuthenticated:
		switch to {
		case KindAuthenticated, KindDisconnected, KindClosed:
			return true
		}
	case KindDisconnected:
		switch to {
		case KindAuthenticated, KindClosed:
			return true
		}
	case KindClosed:
		return false
	}
	return false
}

// isEditing reports whether mode is the Editing variant, as opposed to
// Playing.
func isEditing(mode InputMode) bool {
	_, editing := mode.(Editing)
	return editing
}

// Transition applies proposed to id if the move is legal per
// legalTransition. It is the general-purpose entry point used by the
// gateway's input-mode engine (e.g. Playing <-> Editing) and by
// administrative tooling; Disconnect and Redeem below implement their own
// stricter, more specific business rules rather than calling Transition.
func (r *Registry) Transition(id ids.SessionId, proposed State) error {
	e, ok := r.lookup(id)
	if !ok {
		return &Error{Kind: ErrUnknownSession, Message: id.String()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.session.State.Kind()
	to := proposed.Kind()
	if !legalTransition(from, to) {
		return &Error{Kind: ErrIllegalTransition, Message: from.String() + " -> " + to.String()}
	}

	// The legality table's Auth-Playing/Auth-Editing columns are distinct
	// even though both collapse to KindAuthenticated: the table's diagonal
	// (Playing -> Playing, Editing -> Editing) is explicitly "—". Only a
	// genuine mode flip is a legal same-Kind Authenticated move.
	if from == KindAuthenticated && to == KindAuthenticated {
		curMode := e.session.State.(Authenticated).Mode
		nextMode := proposed.(Authenticated).Mode
		if isEditing(curMode) == isEditing(nextMode) {
			return &Error{Kind: ErrIllegalTransition, Message: "authenticated mode unchanged"}
		}
	}

	e.session.State = proposed
	e.session.LastActivity = r.now()
	return nil
}

// Snapshot returns a copy of id's current session record.
func (r *Registry) Snapshot(id ids.SessionId) (Session, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Session{}, &Error{Kind: ErrUnknownSession, Message: id.String()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// Touch refreshes id's LastActivity without otherwise changing its state,
// for the idle-timeout reaper of spec.md §6.
func (r *Registry) Touch(id ids.SessionId) error {
	e, ok := r.lookup(id)
	if !ok {
		return &Error{Kind: ErrUnknownSession, Message: id.String()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastActivity = r.now()
	return nil
}

// Disconnect records that id's transport dropped or its session ended. A
// recoverable disconnect of an Authenticated session mints a reconnection
// token and moves it to Disconnected; every other case — including a
// clean logout — moves straight to Closed.
//
// Connecting and Authenticating sessions have no Authenticated payload to
// resume into, so a recoverable disconnect there is not "disconnected
// with a token" but simply gone — closing straight away is what keeps
// spec.md §8's invariant intact ("if state(s) = Disconnected then exactly
// one valid ReconnectionToken exists for s"): this registry never creates
// a Disconnected record it cannot back with a token.
//
// ReasonLogout is distinct from ReasonRecoverable precisely so a clean
// "quit" (spec.md §8 S1) reaches Closed directly with no token minted,
// rather than being treated like a dropped connection that deserves a
// chance to resume.
func (r *Registry) Disconnect(id ids.SessionId, reason DisconnectReason) (*token.Token, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, &Error{Kind: ErrUnknownSession, Message: id.String()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.State.Kind() == KindClosed {
		return nil, &Error{Kind: ErrIllegalTransition, Message: "already closed"}
	}

	now := r.now()

	if reason == ReasonAdminForce || reason == ReasonLogout {
		e.session.State = Closed{}
		e.session.LastActivity = now
		return nil, nil
	}

	auth, ok := e.session.State.(Authenticated)
	if !ok {
		e.session.State = Closed{}
		e.session.LastActivity = now
		return nil, nil
	}

	tok, err := token.New(id, r.reconnectTTL, now)
	if err != nil {
		return nil, err
	}

	e.session.State = Disconnected{Previous: auth, Token: tok, DisconnectedAt: now}
	e.session.LastActivity = now
	return &tok, nil
}

// Redeem consumes a reconnection token and restores its session to the
// exact State it was disconnected from. It is implemented independently
// of Transition rather than on top of it: redemption requires checking
// the token's secret and expiry and requires restoring exactly Previous,
// neither of which the general legality table encodes.
func (r *Registry) Redeem(tokenText string) (ids.SessionId, error) {
	tok, err := token.Decode(tokenText)
	if err != nil {
		return ids.SessionId{}, &RedemptionError{Kind: RedemptionMalformed}
	}

	e, ok := r.lookup(tok.SessionID)
	if !ok {
		return ids.SessionId{}, &RedemptionError{Kind: RedemptionSessionClosed}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	disc, ok := e.session.State.(Disconnected)
	if !ok {
		if e.session.State.Kind() == KindClosed {
			return ids.SessionId{}, &RedemptionError{Kind: RedemptionSessionClosed}
		}
		// Already reconnected (or never disconnected) under this id: the
		// token has already done its one job.
		return ids.SessionId{}, &RedemptionError{Kind: RedemptionAlreadyUsed}
	}

	if !disc.Token.SecretEquals(tok) {
		// Right session id, wrong secret: indistinguishable from a
		// malformed token to the client (spec.md §7).
		return ids.SessionId{}, &RedemptionError{Kind: RedemptionMalformed}
	}

	now := r.now()
	if disc.Token.IsExpired(now) {
		return ids.SessionId{}, &RedemptionError{Kind: RedemptionExpired}
	}

	e.session.State = disc.Previous
	e.session.LastActivity = now
	return tok.SessionID, nil
}

// Close terminates id unconditionally. It is idempotent: closing an
// already-Closed session succeeds silently, matching spec.md §8's "close
// is idempotent" testable property.
func (r *Registry) Close(id ids.SessionId) error {
	e, ok := r.lookup(id)
	if !ok {
		return &Error{Kind: ErrUnknownSession, Message: id.String()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.State = Closed{}
	e.session.LastActivity = r.now()
	return nil
}

// ExpiredDisconnected returns the ids of all sessions that have sat in
// Disconnected past their token's expiry, for the reaper of spec.md §6 to
// Close. It takes a snapshot under the index lock and checks expiry
// per-entry under each entry's own lock, so it never blocks Create,
// Transition, etc. on other sessions while scanning.
func (r *Registry) ExpiredDisconnected(now time.Time) []ids.SessionId {
	r.mu.RLock()
	candidates := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		candidates = append(candidates, e)
	}
	r.mu.RUnlock()

	var expired []ids.SessionId
	for _, e := range candidates {
		e.mu.Lock()
		if disc, ok := e.session.State.(Disconnected); ok && disc.Token.IsExpired(now) {
			expired = append(expired, e.session.ID)
		}
		e.mu.Unlock()
	}
	return expired
}
