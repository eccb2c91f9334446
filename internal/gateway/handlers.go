package gateway

import (
	"context"
	"errors"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/session"
)

// errNoLiveConnection is returned by the World -> Gateway callbacks below
// when sessionID has no connection goroutine running locally to signal —
// it either never connected to this gateway instance or has already torn
// down, distinct from pool.ErrNotConnected's narrower "no delivery channel".
var errNoLiveConnection = errors.New("no live connection for session")

// SendOutput implements gatewayrpc.Handlers: ordinary output is just a
// Connection Pool delivery, spec.md §4.3's drop-oldest backpressure
// applies exactly as written.
func (g *Gateway) SendOutput(ctx context.Context, sessionID ids.SessionId, rec output.Record) error {
	return g.pool.Send(sessionID, rec)
}

// SendPrompt is SendOutput with the Prompt kind forced, matching spec.md
// §4.4's distinct callback for prompt text the client may render
// differently (e.g. no trailing newline).
func (g *Gateway) SendPrompt(ctx context.Context, sessionID ids.SessionId, promptText string) error {
	return g.pool.Send(sessionID, output.Record{Text: promptText, Kind: output.KindPrompt})
}

// BeginEditing flips the Session Registry into Editing and hands the
// live connection its starting buffer, per spec.md §4.5's "transitions
// ... only by server RPCs".
func (g *Gateway) BeginEditing(ctx context.Context, sessionID ids.SessionId, title, initialContent, originHandle string) error {
	snap, err := g.registry.Snapshot(sessionID)
	if err != nil {
		return err
	}
	auth, ok := snap.State.(session.Authenticated)
	if !ok {
		return &session.Error{Kind: session.ErrIllegalTransition, Message: "BeginEditing on a non-authenticated session"}
	}

	if err := g.registry.Transition(sessionID, session.Authenticated{
		AccountID: auth.AccountID,
		Mode:      session.Editing{Title: title, Buffer: initialContent, OriginOpaqueHandle: originHandle},
	}); err != nil {
		return err
	}

	c, ok := g.lookupConn(sessionID)
	if !ok {
		return errNoLiveConnection
	}
	select {
	case c.ctrlCh <- ctrlMsg{kind: ctrlBeginEditing, title: title, initial: initialContent, handle: originHandle}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// FinishEditing is the server-initiated counterpart to a client save/cancel
// chord: the world may end an edit session unilaterally (e.g. an admin
// abort), so the gateway must be able to flip Editing -> Playing without
// a SendInput round-trip.
func (g *Gateway) FinishEditing(ctx context.Context, sessionID ids.SessionId) error {
	snap, err := g.registry.Snapshot(sessionID)
	if err != nil {
		return err
	}
	auth, ok := snap.State.(session.Authenticated)
	if !ok {
		return &session.Error{Kind: session.ErrIllegalTransition, Message: "FinishEditing on a non-authenticated session"}
	}

	if err := g.registry.Transition(sessionID, session.Authenticated{
		AccountID: auth.AccountID,
		Mode:      session.Playing{},
	}); err != nil {
		return err
	}

	c, ok := g.lookupConn(sessionID)
	if !ok {
		return errNoLiveConnection
	}
	select {
	case c.ctrlCh <- ctrlMsg{kind: ctrlFinishEditing}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// DisconnectSession is the world's administrative force-disconnect
// (spec.md §4.4/§4.7): it records the disconnect in the Registry right
// away (so a concurrent reconnection attempt sees the final state
// immediately) and signals the connection's own loop to stop, which then
// runs the ordinary teardown path in finalizeDisconnect.
func (g *Gateway) DisconnectSession(ctx context.Context, sessionID ids.SessionId, reason gatewayrpc.DisconnectReasonCode) error {
	registryReason := session.ReasonRecoverable
	if reason == gatewayrpc.DisconnectAdminForce {
		registryReason = session.ReasonAdminForce
	}
	if _, err := g.registry.Disconnect(sessionID, registryReason); err != nil {
		return err
	}

	c, ok := g.lookupConn(sessionID)
	if !ok {
		return errNoLiveConnection
	}
	select {
	case c.ctrlCh <- ctrlMsg{kind: ctrlDisconnect}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
