// Package gatewayrpc is the gateway's side of the bidirectional RPC
// channel of spec.md §4.4: typed Gateway -> World calls, and the
// Handlers surface the gateway implements to answer World -> Gateway
// callbacks.
package gatewayrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
)

// Backoff configures the capped exponential retry policy spec.md §4.4
// gives Gateway -> World calls, except SendInput: "retried with capped
// exponential backoff (e.g. base 100ms, cap 5s, max 3 attempts)".
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// DefaultBackoff matches spec.md's own example numbers.
var DefaultBackoff = Backoff{Base: 100 * time.Millisecond, Cap: 5 * time.Second, MaxRetries: 2}

// AuthOutcome is the result kind of AuthenticateSession.
type AuthOutcome int

const (
	AuthOk AuthOutcome = iota
	AuthInvalidCredentials
	AuthLocked
	AuthCreationDisabled
)

type authenticateReq struct {
	SessionID   ids.SessionId
	Credentials Credentials
}

// Credentials is the opaque login payload the world authenticates; the
// core treats its internal shape (username/password, or anything else
// the world's auth backend wants) as the world's business.
type Credentials struct {
	Username string
	Password string
}

type authenticateResp struct {
	Outcome   AuthOutcome
	AccountID string
}

type CharacterSummary struct {
	CharacterID string
	Name        string
	Level       int
}

type listCharactersReq struct{ SessionID ids.SessionId }
type listCharactersResp struct{ Characters []CharacterSummary }

type createCharacterReq struct {
	SessionID ids.SessionId
	Name      string
}
type createCharacterResp struct{ BuilderHandle string }

type selectCharacterReq struct {
	SessionID   ids.SessionId
	CharacterID string
}

// InputOutcome is SendInput's result kind; Ok vs an error kind, never
// retried (spec.md §4.4: "retrying a command could double-execute").
// InputQuit is a router-level extension, not a distinct RPC: the world
// signals it when input (e.g. Authentication/CharacterSelection's "quit"
// command) should end the session, so the gateway closes it the same way
// it would any other clean session end — see S1 in spec.md §8.
type InputOutcome int

const (
	InputOk InputOutcome = iota
	InputErr
	InputQuit
)

type sendInputReq struct {
	SessionID ids.SessionId
	Input     string
}
type sendInputResp struct {
	Outcome InputOutcome
	Reason  string
}

type sessionDisconnectedReq struct{ SessionID ids.SessionId }

type sessionReconnectedReq struct {
	NewSessionID ids.SessionId
	OldSessionID ids.SessionId
}

type heartbeatReq struct{ SessionID ids.SessionId }

// Client issues the Gateway -> World operations of spec.md §4.4 over a
// shared rpcconn.Conn.
type Client struct {
	conn    *rpcconn.Conn
	rpcTTL  time.Duration
	backoff Backoff
}

// NewClient wraps conn. rpcTTL is Trpc, the per-call deadline from
// spec.md §5/§6.
func NewClient(conn *rpcconn.Conn, rpcTTL time.Duration) *Client {
	return &Client{conn: conn, rpcTTL: rpcTTL, backoff: DefaultBackoff}
}

func (c *Client) callWithRetry(ctx context.Context, op string, req, resp any) error {
	var lastErr error
	delay := c.backoff.Base
	for attempt := 0; attempt <= c.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			delay *= 2
			if delay > c.backoff.Cap {
				delay = c.backoff.Cap
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.rpcTTL)
		lastErr = c.conn.Call(callCtx, op, req, resp)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.backoff.MaxRetries+1, lastErr)
}

func (c *Client) AuthenticateSession(ctx context.Context, sessionID ids.SessionId, creds Credentials) (AuthOutcome, string, error) {
	var resp authenticateResp
	err := c.callWithRetry(ctx, "AuthenticateSession", authenticateReq{SessionID: sessionID, Credentials: creds}, &resp)
	if err != nil {
		return AuthOutcome(0), "", err
	}
	return resp.Outcome, resp.AccountID, nil
}

func (c *Client) ListCharacters(ctx context.Context, sessionID ids.SessionId) ([]CharacterSummary, error) {
	var resp listCharactersResp
	if err := c.callWithRetry(ctx, "ListCharacters", listCharactersReq{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return resp.Characters, nil
}

func (c *Client) CreateCharacter(ctx context.Context, sessionID ids.SessionId, name string) (string, error) {
	var resp createCharacterResp
	err := c.callWithRetry(ctx, "CreateCharacter", createCharacterReq{SessionID: sessionID, Name: name}, &resp)
	return resp.BuilderHandle, err
}

func (c *Client) SelectCharacter(ctx context.Context, sessionID ids.SessionId, characterID string) error {
	return c.callWithRetry(ctx, "SelectCharacter", selectCharacterReq{SessionID: sessionID, CharacterID: characterID}, nil)
}

// SendInput forwards input verbatim and is never retried at this layer:
// a transport failure here is the caller's (internal/gateway's) signal
// to treat the session as transiently disconnected and buffer locally,
// per spec.md §4.4.
func (c *Client) SendInput(ctx context.Context, sessionID ids.SessionId, input string) (InputOutcome, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcTTL)
	defer cancel()

	var resp sendInputResp
	if err := c.conn.Call(callCtx, "SendInput", sendInputReq{SessionID: sessionID, Input: input}, &resp); err != nil {
		return InputOutcome(0), "", err
	}
	return resp.Outcome, resp.Reason, nil
}

// SessionDisconnected is advisory; callers don't need its result beyond
// success/failure.
func (c *Client) SessionDisconnected(ctx context.Context, sessionID ids.SessionId) error {
	return c.callWithRetry(ctx, "SessionDisconnected", sessionDisconnectedReq{SessionID: sessionID}, nil)
}

// SessionReconnected tells the world to resume routing for the same id;
// per spec.md §4.7 the new and old ids are always equal, but the
// operation keeps both names from the spec's surface for clarity at the
// call site.
func (c *Client) SessionReconnected(ctx context.Context, sessionID ids.SessionId) error {
	return c.callWithRetry(ctx, "SessionReconnected", sessionReconnectedReq{NewSessionID: sessionID, OldSessionID: sessionID}, nil)
}

func (c *Client) Heartbeat(ctx context.Context, sessionID ids.SessionId) error {
	return c.callWithRetry(ctx, "Heartbeat", heartbeatReq{SessionID: sessionID}, nil)
}
