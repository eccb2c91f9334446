package world

import (
	"context"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
)

// notifier is the World -> Gateway callback surface the router calls
// through, matching worldrpc.Client's method set. Router depends on this
// narrow interface rather than *worldrpc.Client directly so tests can
// substitute a recording stub instead of standing up a real connection.
type notifier interface {
	SendOutput(ctx context.Context, sessionID ids.SessionId, rec output.Record) error
	SendPrompt(ctx context.Context, sessionID ids.SessionId, promptText string) error
	BeginEditing(ctx context.Context, sessionID ids.SessionId, title, initialContent, originHandle string) error
	FinishEditing(ctx context.Context, sessionID ids.SessionId) error
	DisconnectSession(ctx context.Context, sessionID ids.SessionId, reason gatewayrpc.DisconnectReasonCode) error
}
