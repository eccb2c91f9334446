package gatewayrpc

import (
	"context"

	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
	"github.com/wyldlands/wyldlands/internal/rpcwire"
)

// DisconnectReasonCode mirrors session.DisconnectReason across the RPC
// boundary without this package importing internal/session, keeping the
// dependency arrow pointing one way (gateway depends on session, not
// vice versa).
type DisconnectReasonCode int

const (
	DisconnectRecoverable DisconnectReasonCode = iota
	DisconnectAdminForce
)

// Handlers is implemented by the gateway to answer the World -> Gateway
// callbacks of spec.md §4.4. Each method's error becomes an Envelope.Err
// on the reply; a nil error means the callback succeeded.
type Handlers interface {
	SendOutput(ctx context.Context, sessionID ids.SessionId, rec output.Record) error
	SendPrompt(ctx context.Context, sessionID ids.SessionId, promptText string) error
	BeginEditing(ctx context.Context, sessionID ids.SessionId, title, initialContent, originHandle string) error
	FinishEditing(ctx context.Context, sessionID ids.SessionId) error
	DisconnectSession(ctx context.Context, sessionID ids.SessionId, reason DisconnectReasonCode) error
}

type sendOutputReq struct {
	SessionID ids.SessionId
	Record    output.Record
}

type sendPromptReq struct {
	SessionID  ids.SessionId
	PromptText string
}

type beginEditingReq struct {
	SessionID      ids.SessionId
	Title          string
	InitialContent string
	OriginHandle   string
}

type finishEditingReq struct{ SessionID ids.SessionId }

type disconnectSessionReq struct {
	SessionID ids.SessionId
	Reason    DisconnectReasonCode
}

// HandlerTable builds the rpcconn dispatch table for h's World -> Gateway
// callbacks.
func HandlerTable(h Handlers) map[string]rpcconn.HandlerFunc {
	return map[string]rpcconn.HandlerFunc{
		"SendOutput": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req sendOutputReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.SendOutput(ctx, req.SessionID, req.Record)
		},
		"SendPrompt": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req sendPromptReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.SendPrompt(ctx, req.SessionID, req.PromptText)
		},
		"BeginEditing": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req beginEditingReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.BeginEditing(ctx, req.SessionID, req.Title, req.InitialContent, req.OriginHandle)
		},
		"FinishEditing": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req finishEditingReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.FinishEditing(ctx, req.SessionID)
		},
		"DisconnectSession": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req disconnectSessionReq
			if err := env.Decode(&req); err != nil {
				return nil, err
			}
			return nil, h.DisconnectSession(ctx, req.SessionID, req.Reason)
		},
	}
}
