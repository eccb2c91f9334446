package worldrpc

import (
	"context"
	"time"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
)

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
	Reason    gatewayrpc.DisconnectReasonCode
}

// Client issues the World -> Gateway callbacks of spec.md §4.4. Per
// spec.md, "World -> Gateway calls addressed to an unknown or
// disconnected session return UnknownSession and are not retried by the
// world" — unlike gatewayrpc.Client, this side never retries.
type Client struct {
	conn   *rpcconn.Conn
	rpcTTL time.Duration
}

// NewClient wraps conn. rpcTTL is Trpc.
func NewClient(conn *rpcconn.Conn, rpcTTL time.Duration) *Client {
	return &Client{conn: conn, rpcTTL: rpcTTL}
}

func (c *Client) call(ctx context.Context, op string, req any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcTTL)
	defer cancel()
	return c.conn.Call(callCtx, op, req, nil)
}

func (c *Client) SendOutput(ctx context.Context, sessionID ids.SessionId, rec output.Record) error {
	return c.call(ctx, "SendOutput", sendOutputReq{SessionID: sessionID, Record: rec})
}

func (c *Client) SendPrompt(ctx context.Context, sessionID ids.SessionId, promptText string) error {
	return c.call(ctx, "SendPrompt", sendPromptReq{SessionID: sessionID, PromptText: promptText})
}

func (c *Client) BeginEditing(ctx context.Context, sessionID ids.SessionId, title, initialContent, originHandle string) error {
	return c.call(ctx, "BeginEditing", beginEditingReq{
		SessionID:      sessionID,
		Title:          title,
		InitialContent: initialContent,
		OriginHandle:   originHandle,
	})
}

// FinishEditing here is the server-initiated cancel named in spec.md
// §4.4; the client-initiated save/cancel path is a SendInput carrying
// the reserved marker (spec.md §4.5), not this callback.
func (c *Client) FinishEditing(ctx context.Context, sessionID ids.SessionId) error {
	return c.call(ctx, "FinishEditing", finishEditingReq{SessionID: sessionID})
}

func (c *Client) DisconnectSession(ctx context.Context, sessionID ids.SessionId, reason gatewayrpc.DisconnectReasonCode) error {
	return c.call(ctx, "DisconnectSession", disconnectSessionReq{SessionID: sessionID, Reason: reason})
}
