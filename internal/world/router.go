package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wyldlands/wyldlands/internal/account"
	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
)

type sessionEntry struct {
	mu    sync.Mutex
	state ServerSessionState
}

// Router implements worldrpc.Handlers: the World Router of spec.md §4.6.
// Its index (id -> entry) uses reader-writer semantics for lookups; each
// entry's own state is guarded by its own mutex, mirroring
// internal/session.Registry's split on the gateway side.
type Router struct {
	mu       sync.RWMutex
	sessions map[ids.SessionId]*sessionEntry

	accounts   Authenticator
	characters CharacterStore
	notify     notifier
	log        *slog.Logger
}

// New builds a Router. notify is typically a *worldrpc.Client.
func New(accounts Authenticator, characters CharacterStore, notify notifier, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		sessions:   make(map[ids.SessionId]*sessionEntry),
		accounts:   accounts,
		characters: characters,
		notify:     notify,
		log:        log,
	}
}

func (r *Router) lookup(id ids.SessionId) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

func (r *Router) ensure(id ids.SessionId) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		e = &sessionEntry{state: Authentication{}}
		r.sessions[id] = e
	}
	return e
}

func (r *Router) forget(id ids.SessionId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// AuthenticateSession handles the Authentication state's only operation.
// Per the Open Question resolved in DESIGN.md, a login for an unknown
// account auto-creates it when account.Service's auto-create toggle is
// on; otherwise an unknown account surfaces as CreationDisabled rather
// than InvalidCredentials, so a client can tell "wrong password" from
// "registration is closed".
func (r *Router) AuthenticateSession(ctx context.Context, sessionID ids.SessionId, creds gatewayrpc.Credentials) (gatewayrpc.AuthOutcome, string, error) {
	entry := r.ensure(sessionID)

	entry.mu.Lock()
	kind := entry.state.Kind()
	entry.mu.Unlock()
	if kind != KindAuthentication {
		return gatewayrpc.AuthInvalidCredentials, "", &Error{Kind: ErrIllegalCommand, Message: "already authenticated"}
	}

	accountID, err := r.accounts.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		r.log.Warn("authentication failed", "session_id", sessionID.String(), "error", err)
		return classifyAuthError(err), "", nil
	}

	entry.mu.Lock()
	entry.state = CharacterSelection{AccountID: accountID}
	entry.mu.Unlock()

	r.log.Info("session authenticated", "session_id", sessionID.String(), "account_id", accountID)
	return gatewayrpc.AuthOk, accountID, nil
}

func classifyAuthError(err error) gatewayrpc.AuthOutcome {
	switch {
	case errors.Is(err, account.ErrLocked):
		return gatewayrpc.AuthLocked
	case errors.Is(err, account.ErrCreationDisabled):
		return gatewayrpc.AuthCreationDisabled
	default:
		return gatewayrpc.AuthInvalidCredentials
	}
}

// ListCharacters requires CharacterSelection; it does not change state.
func (r *Router) ListCharacters(ctx context.Context, sessionID ids.SessionId) ([]gatewayrpc.CharacterSummary, error) {
	entry, ok := r.lookup(sessionID)
	if !ok {
		return nil, &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	entry.mu.Lock()
	sel, ok := entry.state.(CharacterSelection)
	entry.mu.Unlock()
	if !ok {
		return nil, &Error{Kind: ErrIllegalCommand, Message: "not in character selection"}
	}
	return r.characters.ListCharacters(ctx, sel.AccountID)
}

// CreateCharacter begins CharacterCreation with name pre-filled, per the
// Open Question resolution in DESIGN.md: the gateway learns the intended
// name up front (spec.md §4.4's CreateCharacter signature takes one), and
// the builder_handle returned is simply the session id — the router
// already keys all per-session state by it, so no separate handle table
// is needed.
func (r *Router) CreateCharacter(ctx context.Context, sessionID ids.SessionId, name string) (string, error) {
	entry, ok := r.lookup(sessionID)
	if !ok {
		return "", &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sel, ok := entry.state.(CharacterSelection)
	if !ok {
		return "", &Error{Kind: ErrIllegalCommand, Message: "not in character selection"}
	}
	entry.state = CharacterCreation{AccountID: sel.AccountID, Builder: CharacterBuilder{Name: name}}
	return sessionID.String(), nil
}

// SelectCharacter requires CharacterSelection and ownership; transitions
// to Playing.
func (r *Router) SelectCharacter(ctx context.Context, sessionID ids.SessionId, characterID string) error {
	entry, ok := r.lookup(sessionID)
	if !ok {
		return &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	entry.mu.Lock()
	sel, ok := entry.state.(CharacterSelection)
	entry.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrIllegalCommand, Message: "not in character selection"}
	}

	owns, err := r.characters.Owns(ctx, sel.AccountID, characterID)
	if err != nil {
		return err
	}
	if !owns {
		return &Error{Kind: ErrValidation, Message: "no such character"}
	}

	entry.mu.Lock()
	entry.state = Playing{AccountID: sel.AccountID, CharacterID: characterID}
	entry.mu.Unlock()
	return nil
}

// SendInput is the single unified input channel (spec.md §4.4) for
// CharacterSelection text commands, CharacterCreation builder mutations,
// in-world Playing commands, and the Editing save/cancel marker.
func (r *Router) SendInput(ctx context.Context, sessionID ids.SessionId, input string) (outcome gatewayrpc.InputOutcome, reason string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router handler panicked", "session_id", sessionID.String(), "panic", fmt.Sprint(rec))
			_ = r.notify.SendOutput(context.Background(), sessionID, output.InternalError())
			outcome, reason, err = gatewayrpc.InputErr, "", &Error{Kind: ErrInternal, Message: "an internal error occurred"}
		}
	}()

	entry, ok := r.lookup(sessionID)
	if !ok {
		return gatewayrpc.InputErr, "", &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}

	entry.mu.Lock()
	state := entry.state
	entry.mu.Unlock()

	switch st := state.(type) {
	case CharacterSelection:
		return r.handleCharacterSelectionInput(ctx, sessionID, entry, st, input)
	case CharacterCreation:
		return r.handleCharacterCreationInput(ctx, sessionID, entry, st, input)
	case Playing:
		return r.handlePlayingInput(ctx, sessionID, entry, st, input)
	case Editing:
		return r.handleEditingInput(ctx, sessionID, entry, st, input)
	default:
		return gatewayrpc.InputErr, "", &Error{Kind: ErrIllegalCommand, Message: "no input accepted in " + state.Kind().String()}
	}
}

// SessionDisconnected is advisory and idempotent: the router has nothing
// to clean up until SessionReconnected or a terminal disconnect arrives,
// so it only logs.
func (r *Router) SessionDisconnected(ctx context.Context, sessionID ids.SessionId) error {
	if _, ok := r.lookup(sessionID); !ok {
		return &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	r.log.Info("session marked away", "session_id", sessionID.String())
	return nil
}

// SessionReconnected resumes routing under the same id; per spec.md §4.7
// the ids are always equal, so there is nothing to migrate.
func (r *Router) SessionReconnected(ctx context.Context, sessionID ids.SessionId) error {
	if _, ok := r.lookup(sessionID); !ok {
		return &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	r.log.Info("session resumed", "session_id", sessionID.String())
	return nil
}

// Heartbeat is pure liveness; it touches nothing.
func (r *Router) Heartbeat(ctx context.Context, sessionID ids.SessionId) error {
	if _, ok := r.lookup(sessionID); !ok {
		return &Error{Kind: ErrUnknownSession, Message: sessionID.String()}
	}
	return nil
}

// Close forgets a session's world-side state entirely, for the gateway's
// terminal-disconnect notification (spec.md §4.7 step 5).
func (r *Router) Close(sessionID ids.SessionId) {
	r.forget(sessionID)
}

