package worldrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
)

// gatewayStub implements gatewayrpc.Handlers, recording the last call of
// each kind so tests can assert on what worldrpc.Client actually sent.
type gatewayStub struct {
	lastOutputText   string
	lastPromptText   string
	lastEditTitle    string
	finishCalled     bool
	lastDisconnectID ids.SessionId
	lastReason       gatewayrpc.DisconnectReasonCode
}

func (g *gatewayStub) SendOutput(ctx context.Context, sessionID ids.SessionId, rec output.Record) error {
	g.lastOutputText = rec.Text
	return nil
}
func (g *gatewayStub) SendPrompt(ctx context.Context, sessionID ids.SessionId, promptText string) error {
	g.lastPromptText = promptText
	return nil
}
func (g *gatewayStub) BeginEditing(ctx context.Context, sessionID ids.SessionId, title, initialContent, originHandle string) error {
	g.lastEditTitle = title
	return nil
}
func (g *gatewayStub) FinishEditing(ctx context.Context, sessionID ids.SessionId) error {
	g.finishCalled = true
	return nil
}
func (g *gatewayStub) DisconnectSession(ctx context.Context, sessionID ids.SessionId, reason gatewayrpc.DisconnectReasonCode) error {
	g.lastDisconnectID = sessionID
	g.lastReason = reason
	return nil
}

func newTestWorldClient(t *testing.T, gw *gatewayStub) (*Client, func()) {
	t.Helper()
	worldConn, gatewayConn := net.Pipe()
	world := rpcconn.New(worldConn, nil)
	gateway := rpcconn.New(gatewayConn, gatewayrpc.HandlerTable(gw))

	ctx, cancel := context.WithCancel(context.Background())
	go world.Serve(ctx)
	go gateway.Serve(ctx)

	return NewClient(world, time.Second), func() {
		cancel()
		worldConn.Close()
		gatewayConn.Close()
	}
}

func TestSendOutputReachesGatewayHandlers(t *testing.T) {
	gw := &gatewayStub{}
	c, cleanup := newTestWorldClient(t, gw)
	defer cleanup()

	err := c.SendOutput(context.Background(), ids.NewSessionId(), output.Record{Text: "you see a door", Kind: output.KindNormal})
	require.NoError(t, err)
	assert.Equal(t, "you see a door", gw.lastOutputText)
}

func TestSendPromptReachesGatewayHandlers(t *testing.T) {
	gw := &gatewayStub{}
	c, cleanup := newTestWorldClient(t, gw)
	defer cleanup()

	err := c.SendPrompt(context.Background(), ids.NewSessionId(), "HP 10/10>")
	require.NoError(t, err)
	assert.Equal(t, "HP 10/10>", gw.lastPromptText)
}

func TestBeginEditingReachesGatewayHandlers(t *testing.T) {
	gw := &gatewayStub{}
	c, cleanup := newTestWorldClient(t, gw)
	defer cleanup()

	err := c.BeginEditing(context.Background(), ids.NewSessionId(), "room description", "", "builder-42")
	require.NoError(t, err)
	assert.Equal(t, "room description", gw.lastEditTitle)
}

func TestFinishEditingReachesGatewayHandlers(t *testing.T) {
	gw := &gatewayStub{}
	c, cleanup := newTestWorldClient(t, gw)
	defer cleanup()

	err := c.FinishEditing(context.Background(), ids.NewSessionId())
	require.NoError(t, err)
	assert.True(t, gw.finishCalled)
}

func TestDisconnectSessionReachesGatewayHandlers(t *testing.T) {
	gw := &gatewayStub{}
	c, cleanup := newTestWorldClient(t, gw)
	defer cleanup()

	sessionID := ids.NewSessionId()
	err := c.DisconnectSession(context.Background(), sessionID, gatewayrpc.DisconnectAdminForce)
	require.NoError(t, err)
	assert.Equal(t, sessionID, gw.lastDisconnectID)
	assert.Equal(t, gatewayrpc.DisconnectAdminForce, gw.lastReason)
}

func TestAuthenticateSessionReachesWorldHandlers(t *testing.T) {
	worldConn, gatewayConn := net.Pipe()
	defer worldConn.Close()
	defer gatewayConn.Close()

	handlers := &recordingWorldHandlers{}
	world := rpcconn.New(worldConn, HandlerTable(handlers))
	gateway := rpcconn.New(gatewayConn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go world.Serve(ctx)
	go gateway.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()

	sessionID := ids.NewSessionId()
	var resp struct {
		Outcome   gatewayrpc.AuthOutcome
		AccountID string
	}
	err := gateway.Call(callCtx, "AuthenticateSession", struct {
		SessionID   ids.SessionId
		Credentials gatewayrpc.Credentials
	}{SessionID: sessionID, Credentials: gatewayrpc.Credentials{Username: "rowan", Password: "hunter2"}}, &resp)
	require.NoError(t, err)
	assert.Equal(t, gatewayrpc.AuthOk, resp.Outcome)
	assert.Equal(t, "acct-rowan", resp.AccountID)
	assert.Equal(t, sessionID, handlers.lastAuthSession)
}

// recordingWorldHandlers implements worldrpc.Handlers for tests that exercise
// the Gateway -> World direction.
type recordingWorldHandlers struct {
	lastAuthSession ids.SessionId
}

func (h *recordingWorldHandlers) AuthenticateSession(ctx context.Context, sessionID ids.SessionId, creds gatewayrpc.Credentials) (gatewayrpc.AuthOutcome, string, error) {
	h.lastAuthSession = sessionID
	return gatewayrpc.AuthOk, "acct-rowan", nil
}
func (h *recordingWorldHandlers) ListCharacters(ctx context.Context, sessionID ids.SessionId) ([]gatewayrpc.CharacterSummary, error) {
	return nil, nil
}
func (h *recordingWorldHandlers) CreateCharacter(ctx context.Context, sessionID ids.SessionId, name string) (string, error) {
	return "", nil
}
func (h *recordingWorldHandlers) SelectCharacter(ctx context.Context, sessionID ids.SessionId, characterID string) error {
	return nil
}
func (h *recordingWorldHandlers) SendInput(ctx context.Context, sessionID ids.SessionId, input string) (gatewayrpc.InputOutcome, string, error) {
	return gatewayrpc.InputOk, "", nil
}
func (h *recordingWorldHandlers) SessionDisconnected(ctx context.Context, sessionID ids.SessionId) error {
	return nil
}
func (h *recordingWorldHandlers) SessionReconnected(ctx context.Context, sessionID ids.SessionId) error {
	return nil
}
func (h *recordingWorldHandlers) Heartbeat(ctx context.Context, sessionID ids.SessionId) error {
	return nil
}
