// Package worldrpc is the world server's side of the bidirectional RPC
// channel of spec.md §4.4: Handlers answers Gateway -> World calls, and
// Client issues World -> Gateway callbacks, over the same rpcconn.Conn
// the gateway holds the other end of.
package worldrpc

import (
	"context"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
	"github.com/wyldlands/wyldlands/internal/rpcwire"
)

// Handlers is implemented by the world router to answer the Gateway ->
// World calls of spec.md §4.4.
type Handlers interface {
	AuthenticateSession(ctx context.Context, sessionID ids.SessionId, creds gatewayrpc.Credentials) (gatewayrpc.AuthOutcome, string, error)
	ListCharacters(ctx context.Context, sessionID ids.SessionId) ([]gatewayrpc.CharacterSummary, error)
	CreateCharacter(ctx context.Context, sessionID ids.SessionId, name string) (string, error)
	SelectCharacter(ctx context.Context, sessionID ids.SessionId, characterID string) error
	SendInput(ctx context.Context, sessionID ids.SessionId, input string) (gatewayrpc.InputOutcome, string, error)
	SessionDisconnected(ctx context.Context, sessionID ids.SessionId) error
	SessionReconnected(ctx context.Context, sessionID ids.SessionId) error
	Heartbeat(ctx context.Context, sessionID ids.SessionId) error
}

// These mirror gatewayrpc's unexported request/response shapes exactly
// (same field names, same JSON tags by default) so the two packages
// interoperate over the wire without either importing the other's
// unexported types.
type authenticateReq struct {
	SessionID   ids.SessionId
	Credentials gatewayrpc.Credentials
}
type authenticateResp struct {
	Outcome   gatewayrpc.AuthOutcome
	AccountID string
}

type listCharactersReq struct{ SessionID ids.SessionId }
type listCharactersResp struct{ Characters []gatewayrpc.CharacterSummary }

type createCharacterReq struct {
	SessionID ids.SessionId
	Name      string
}
type createCharacterResp struct{ BuilderHandle string }

type selectCharacterReq struct {
	SessionID   ids.SessionId
	CharacterID string
}

type sendInputReq struct {
	SessionID ids.SessionId
	Input     string
}
type sendInputResp struct {
	Outcome gatewayrpc.InputOutcome
	Reason  string
}

type sessionDisconnectedReq struct{ SessionID ids.SessionId }
type sessionReconnectedReq struct {
	NewSessionID ids.SessionId
	OldSessionID ids.SessionId
}
type heartbeatReq struct{ SessionID ids.SessionId }

// HandlerTable builds the rpcconn dispatch table for h's Gateway -> World
// calls.
func HandlerTable(h Handlers) map[string]rpcconn.HandlerFunc {
	return map[string]rpcconn.HandlerFunc{
		"AuthenticateSession": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req authenticateReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			outcome, accountID, err := h.AuthenticateSession(ctx, req.SessionID, req.Credentials)
			if err != nil {
				return nil, err
			}
			return authenticateResp{Outcome: outcome, AccountID: accountID}, nil
		},
		"ListCharacters": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req listCharactersReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			chars, err := h.ListCharacters(ctx, req.SessionID)
			if err != nil {
				return nil, err
			}
			return listCharactersResp{Characters: chars}, nil
		},
		"CreateCharacter": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req createCharacterReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			handle, err := h.CreateCharacter(ctx, req.SessionID, req.Name)
			if err != nil {
				return nil, err
			}
			return createCharacterResp{BuilderHandle: handle}, nil
		},
		"SelectCharacter": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req selectCharacterReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.SelectCharacter(ctx, req.SessionID, req.CharacterID)
		},
		"SendInput": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req sendInputReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			outcome, reason, err := h.SendInput(ctx, req.SessionID, req.Input)
			if err != nil {
				return nil, err
			}
			return sendInputResp{Outcome: outcome, Reason: reason}, nil
		},
		"SessionDisconnected": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req sessionDisconnectedReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.SessionDisconnected(ctx, req.SessionID)
		},
		"SessionReconnected": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req sessionReconnectedReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.SessionReconnected(ctx, req.NewSessionID)
		},
		"Heartbeat": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req heartbeatReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.Heartbeat(ctx, req.SessionID)
		},
	}
}
