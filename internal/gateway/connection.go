package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/persistence"
	"github.com/wyldlands/wyldlands/internal/protocol"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
	"github.com/wyldlands/wyldlands/internal/session"
)

// Editing's line-protocol emulation sentinel commands, per spec.md §4.5:
// a pure line protocol has no keystroke-mode wire capability, so a save
// or cancel chord is just a line matching one of these on its own.
const (
	editLineSave   = ".save"
	editLineCancel = ".cancel"
)

// keystroke codepoints the framed adapter's editing keystroke events use
// for the chords a real terminal would send as control sequences.
// ev.Codepoint is otherwise a valid rune (>= 0).
const (
	keystrokeSave      rune = -2
	keystrokeCancel    rune = -3
	keystrokeBackspace rune = -4
)

// ctrlKind tags a world-initiated signal delivered to a live connection
// outside of the normal output stream: spec.md §4.4's BeginEditing,
// FinishEditing, and DisconnectSession all need to reach the specific
// goroutine serving this session, not just its output channel.
type ctrlKind int

const (
	ctrlBeginEditing ctrlKind = iota
	ctrlFinishEditing
	ctrlDisconnect
)

type ctrlMsg struct {
	kind    ctrlKind
	title   string
	initial string
	handle  string
}

// connection is one live client connection: a reader goroutine decoding
// transport bytes into protocol.InputEvents, a writer goroutine draining
// outCh, and this struct's own loop dispatching events against the
// Session Registry and the gatewayrpc.Client, mirroring the shape of the
// teacher's GameClient generalized from one wire format to two.
type connection struct {
	id      ids.SessionId
	gateway *Gateway
	adapter protocol.Adapter
	proto   session.Protocol
	tr      transport
	log     *slog.Logger

	outCh  chan output.Record
	ctrlCh chan ctrlMsg

	// editBuffer/editTitle/editHandle are the gateway-local accumulation
	// for the current Editing session, deliberately kept off the
	// Session Registry: every keystroke would otherwise need a
	// Registry.Transition, which legalTransition forbids for a same-mode
	// move (registry.go's "authenticated mode unchanged" check).
	editBuffer string
	editTitle  string
	editHandle string

	consecutiveSendFailures int

	// disconnectReason tells finalizeDisconnect how to record this
	// connection's end in the Session Registry. It defaults to
	// ReasonRecoverable (a dropped transport); a clean "quit" sets it to
	// ReasonLogout so the session reaches Closed directly instead of
	// minting a reconnection token it will never be redeemed with.
	disconnectReason session.DisconnectReason
}

// serve runs one accepted connection end to end: registry admission,
// the input-mode engine, and teardown. It is the gateway-side analogue
// of the teacher's handleConnection, generalized to run three goroutines
// (reader, writer, dispatch loop) instead of the teacher's two
// (reader, sendCh drain).
func (g *Gateway) serve(parent context.Context, tr transport, proto session.Protocol, adapter protocol.Adapter) {
	g.wg.Add(1)
	defer g.wg.Done()

	addr := tr.remoteAddr()
	ip, _, _ := splitHostPort(addr)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer tr.close()

	id := g.registry.Create(proto, addr)
	log := g.log.With("session_id", id.String(), "addr", addr, "protocol", proto.String())

	if err := g.registry.Transition(id, session.Authenticating{}); err != nil {
		log.Error("initial authenticating transition failed", "error", err)
		_ = g.registry.Close(id)
		return
	}

	c := &connection{
		id:      id,
		gateway: g,
		adapter: adapter,
		proto:   proto,
		tr:      tr,
		log:     log,
		outCh:   make(chan output.Record, g.cfg.Session.QueueCapacity),
		ctrlCh:  make(chan ctrlMsg, 4),
	}

	g.pool.Register(id, c.outCh)
	g.trackConn(id, c)

	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		c.writePump(ctx)
	}()

	c.run(ctx)

	cancel()
	writers.Wait()
	g.releaseConnection(ip)
	g.finalizeDisconnect(context.Background(), c)
}

// run is c's main dispatch loop: a dedicated reader goroutine feeds
// decoded chunks back over readCh so the loop can also select on ctrlCh
// (world-initiated BeginEditing/FinishEditing/DisconnectSession) without
// blocking on the transport read.
func (c *connection) run(ctx context.Context) {
	type readResult struct {
		chunk []byte
		err   error
	}
	readCh := make(chan readResult)

	go func() {
		for {
			_ = c.tr.setReadDeadline(time.Now().Add(c.gateway.cfg.Session.IdleTimeoutDuration()))
			chunk, err := c.tr.readChunk()
			select {
			case readCh <- readResult{chunk, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-readCh:
			if res.err != nil {
				return
			}
			if !c.processChunk(ctx, res.chunk) {
				return
			}
		case msg := <-c.ctrlCh:
			if !c.processControl(msg) {
				return
			}
		}
	}
}

func (c *connection) processChunk(ctx context.Context, chunk []byte) bool {
	events, err := c.adapter.Decode(chunk)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			c.sendLocal(output.Record{Kind: output.KindError, Text: perr.Message})
			if !perr.Recoverable {
				return false
			}
		} else {
			return false
		}
	}
	for _, ev := range events {
		if !c.handleEvent(ctx, ev) {
			return false
		}
	}
	return true
}

func (c *connection) processControl(msg ctrlMsg) bool {
	switch msg.kind {
	case ctrlBeginEditing:
		c.editBuffer, c.editTitle, c.editHandle = "", msg.title, msg.handle
		c.sendLocal(output.Record{Kind: output.KindSystem, Text: "editing: " + msg.title})
	case ctrlFinishEditing:
		c.editBuffer, c.editTitle, c.editHandle = "", "", ""
		c.sendLocal(output.Record{Kind: output.KindSystem, Text: "editing cancelled by server"})
	case ctrlDisconnect:
		return false
	}
	return true
}

func (c *connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-c.outCh:
			data, err := c.adapter.Encode(rec)
			if err != nil {
				c.log.Warn("encoding output failed", "error", err)
				continue
			}
			if err := c.tr.writeChunk(data); err != nil {
				return
			}
		}
	}
}

func (c *connection) sendLocal(rec output.Record) {
	select {
	case c.outCh <- rec:
	default:
	}
}

func (c *connection) handleEvent(ctx context.Context, ev protocol.InputEvent) bool {
	switch ev.Kind {
	case protocol.InputControl:
		switch ev.Control {
		case protocol.ControlKeepalive:
			_ = c.gateway.registry.Touch(c.id)
			if err := c.gateway.rpc.Heartbeat(ctx, c.id); err != nil {
				c.log.Debug("heartbeat failed", "error", err)
			}
		case protocol.ControlClose:
			return false
		}
		return true
	case protocol.InputSideChannel:
		// Side channels (e.g. terminal resize) have no core-spec
		// consumer; the external command system owns them.
		return true
	}

	snap, err := c.gateway.registry.Snapshot(c.id)
	if err != nil {
		return false
	}
	_ = c.gateway.registry.Touch(c.id)

	switch snap.State.Kind() {
	case session.KindAuthenticating:
		return c.handlePreAuthEvent(ctx, ev)
	case session.KindAuthenticated:
		auth := snap.State.(session.Authenticated)
		if _, editing := auth.Mode.(session.Editing); editing {
			return c.handleEditingEvent(ctx, ev, auth)
		}
		return c.handlePlayingEvent(ctx, ev)
	default:
		return true
	}
}

// handlePreAuthEvent parses the local login/register/reconnect/quit
// commands a client sends before the Session Registry reaches
// Authenticated. These never go through SendInput: world.Router.SendInput
// has no case for a pre-authentication state, so the gateway itself owns
// this small command grammar, per the Open Question decision in
// DESIGN.md.
func (c *connection) handlePreAuthEvent(ctx context.Context, ev protocol.InputEvent) bool {
	if ev.Kind != protocol.InputLine {
		return true
	}
	line := strings.TrimSpace(ev.Line)
	if line == "" {
		return true
	}
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case "reconnect":
		if len(fields) != 2 {
			c.sendLocal(output.Record{Kind: output.KindError, Text: "usage: reconnect <token>"})
			return true
		}
		return c.attemptReconnect(ctx, fields[1])
	case "login", "register":
		if len(fields) != 3 {
			c.sendLocal(output.Record{Kind: output.KindError, Text: "usage: login <user> <password>"})
			return true
		}
		return c.attemptLogin(ctx, fields[1], fields[2])
	case "quit":
		c.disconnectReason = session.ReasonLogout
		return false
	default:
		c.sendLocal(output.Record{Kind: output.KindError, Text: "commands: login <user> <password>, register <user> <password>, reconnect <token>, quit"})
		return true
	}
}

func (c *connection) attemptLogin(ctx context.Context, username, password string) bool {
	outcome, accountID, err := c.gateway.rpc.AuthenticateSession(ctx, c.id, gatewayrpc.Credentials{Username: username, Password: password})
	if err != nil {
		c.log.Warn("authenticate rpc failed", "error", err)
		c.sendLocal(output.Record{Kind: output.KindError, Text: "authentication temporarily unavailable"})
		return true
	}

	switch outcome {
	case gatewayrpc.AuthOk:
		if err := c.gateway.registry.Transition(c.id, session.Authenticated{AccountID: accountID, Mode: session.Playing{}}); err != nil {
			c.log.Error("registry transition after authentication failed", "error", err)
			c.sendLocal(output.Record{Kind: output.KindError, Text: "an internal error occurred"})
			return true
		}
		c.sendLocal(output.Record{Kind: output.KindSystem, Text: "welcome"})
	case gatewayrpc.AuthInvalidCredentials:
		c.sendLocal(output.Record{Kind: output.KindError, Text: "invalid credentials"})
	case gatewayrpc.AuthLocked:
		c.sendLocal(output.Record{Kind: output.KindError, Text: "account locked"})
	case gatewayrpc.AuthCreationDisabled:
		c.sendLocal(output.Record{Kind: output.KindError, Text: "account creation is disabled"})
	}
	return true
}

// attemptReconnect redeems a reconnection token directly against the
// Registry rather than routing through SendInput, and swaps c onto the
// redeemed id: spec.md §4.7 is explicit that the client never learns the
// fresh SessionId Create minted for this raw connection, only the
// resumed one.
func (c *connection) attemptReconnect(ctx context.Context, tokenText string) bool {
	newID, err := c.gateway.registry.Redeem(tokenText)
	if err != nil {
		c.sendLocal(output.ReconnectionFailed())
		return true
	}

	oldID := c.id
	c.gateway.pool.Unregister(oldID)
	c.gateway.untrackConn(oldID)
	_ = c.gateway.registry.Close(oldID)

	c.id = newID
	c.log = c.log.With("session_id", newID.String())
	c.gateway.pool.Register(newID, c.outCh)
	c.gateway.trackConn(newID, c)

	if err := c.gateway.rpc.SessionReconnected(ctx, newID); err != nil {
		c.log.Warn("session reconnected notify failed", "error", err)
	}

	c.replayQueued(ctx)
	c.sendLocal(output.Record{Kind: output.KindSystem, Text: "reconnected"})
	return true
}

// replayQueued drains the in-memory queue this gateway process buffered
// for newID while the world link was down, per spec.md §4.7 step 6
// ("queued commands replayed on reconnect"). It also best-effort drains
// the persisted mirror so the two stay in sync, but does not merge
// persisted-only entries back in: recovering a queue whose gateway
// process restarted mid-disconnect is a deliberate scope cut (DESIGN.md).
func (c *connection) replayQueued(ctx context.Context) {
	g := c.gateway

	g.queuesMu.Lock()
	q, ok := g.queues[c.id]
	delete(g.queues, c.id)
	g.queuesMu.Unlock()

	if dbQueued, err := g.store.DrainInputs(ctx, c.id); err != nil {
		c.log.Warn("draining persisted input queue failed", "error", err)
	} else if len(dbQueued) > 0 && !ok {
		c.log.Warn("persisted input queue had entries with no in-memory counterpart; not replayed", "count", len(dbQueued))
	}

	if !ok {
		return
	}
	for _, cmd := range q.Drain() {
		if !c.sendInput(ctx, cmd.Text) {
			return
		}
	}
}

func (c *connection) handlePlayingEvent(ctx context.Context, ev protocol.InputEvent) bool {
	if ev.Kind != protocol.InputLine {
		return true
	}
	line := strings.TrimRight(ev.Line, "\r")
	if line == "" {
		return true
	}
	return c.sendInput(ctx, line)
}

// handleEditingEvent accumulates a local buffer and recognizes a
// save/cancel chord, either via the framed protocol's native keystroke
// events or the line protocol's sentinel-line emulation, per spec.md
// §4.5. Mode transitions back to Playing happen in finishEditing, after
// the save/cancel marker has gone through sendInput and the connection
// stays open — never as a local heuristic on the keystrokes alone.
func (c *connection) handleEditingEvent(ctx context.Context, ev protocol.InputEvent, auth session.Authenticated) bool {
	if c.adapter.Capabilities().SupportsKeystrokeMode && ev.Kind == protocol.InputKeystroke {
		return c.handleEditingKeystroke(ctx, ev, auth)
	}
	if ev.Kind != protocol.InputLine {
		return true
	}

	switch strings.TrimSpace(ev.Line) {
	case editLineSave:
		return c.finishEditing(ctx, auth, true)
	case editLineCancel:
		return c.finishEditing(ctx, auth, false)
	default:
		c.editBuffer += ev.Line + "\n"
		return true
	}
}

func (c *connection) handleEditingKeystroke(ctx context.Context, ev protocol.InputEvent, auth session.Authenticated) bool {
	switch ev.Codepoint {
	case keystrokeSave:
		return c.finishEditing(ctx, auth, true)
	case keystrokeCancel:
		return c.finishEditing(ctx, auth, false)
	case keystrokeBackspace:
		if n := len(c.editBuffer); n > 0 {
			_, size := utf8.DecodeLastRuneInString(c.editBuffer)
			c.editBuffer = c.editBuffer[:n-size]
		}
	case '\r', '\n':
		c.editBuffer += "\n"
	default:
		if ev.Codepoint >= 0 {
			c.editBuffer += string(ev.Codepoint)
		}
	}
	return true
}

// finishEditing sends the accumulated buffer as an edit marker and, once
// sendInput returns with the connection still open, flips the gateway's
// own Registry state back to Playing. That includes the case where a
// transport failure left the marker in the input queue rather than
// answered by the world. The flip follows the marker's trip through
// sendInput, never the client's keystrokes alone.
func (c *connection) finishEditing(ctx context.Context, auth session.Authenticated, saved bool) bool {
	var marker string
	if saved {
		marker = protocol.EncodeEditSave(c.editBuffer)
	} else {
		marker = protocol.EncodeEditCancel()
	}

	keepOpen := c.sendInput(ctx, marker)
	c.editBuffer, c.editTitle, c.editHandle = "", "", ""

	if keepOpen {
		if err := c.gateway.registry.Transition(c.id, session.Authenticated{AccountID: auth.AccountID, Mode: session.Playing{}}); err != nil {
			c.log.Warn("registry transition after edit completion failed", "error", err)
		}
	}
	return keepOpen
}

// sendInput forwards line to the world and classifies the result:
// a *rpcconn.RemoteError is an application-level message (validation
// failure, illegal command) that the gateway renders locally without
// touching the connection; any other error is a transport failure,
// which spec.md §4.4 asks the gateway to treat as a transient disconnect
// by buffering the input and counting toward maxConsecutiveSendFailures.
func (c *connection) sendInput(ctx context.Context, line string) bool {
	outcome, reason, err := c.gateway.rpc.SendInput(ctx, c.id, line)
	if err != nil {
		var remote *rpcconn.RemoteError
		if errors.As(err, &remote) {
			c.sendLocal(output.Record{Kind: output.KindError, Text: remote.Message})
			c.consecutiveSendFailures = 0
			return true
		}

		c.consecutiveSendFailures++
		c.gateway.enqueue(ctx, c.id, line)
		c.sendLocal(output.Record{Kind: output.KindSystem, Text: "world temporarily unreachable, input queued"})
		if c.consecutiveSendFailures >= maxConsecutiveSendFailures {
			c.log.Warn("world unreachable after repeated attempts, disconnecting session")
			return false
		}
		return true
	}

	c.consecutiveSendFailures = 0
	switch outcome {
	case gatewayrpc.InputQuit:
		c.disconnectReason = session.ReasonLogout
		return false
	case gatewayrpc.InputErr:
		if reason != "" {
			c.sendLocal(output.Record{Kind: output.KindError, Text: reason})
		}
	}
	return true
}

// finalizeDisconnect runs once c's loops have stopped: it unregisters c
// from the pool and conn index, records the disconnect in the Session
// Registry under c.disconnectReason (minting a reconnection token only
// for a recoverable drop of an Authenticated session, never for a clean
// quit), persists the resulting snapshot, and advises the world.
func (g *Gateway) finalizeDisconnect(ctx context.Context, c *connection) {
	id := c.id
	g.pool.Unregister(id)
	g.untrackConn(id)

	if _, err := g.registry.Disconnect(id, c.disconnectReason); err != nil {
		g.log.Debug("registry disconnect", "session_id", id.String(), "error", err)
	}

	if snap, err := g.registry.Snapshot(id); err == nil {
		if tag, payload, encErr := persistence.EncodeState(snap.State); encErr == nil {
			rec := persistence.SessionRecord{
				SessionID:    id,
				StateTag:     tag,
				StatePayload: payload,
				LastActivity: snap.LastActivity,
			}
			if err := g.store.SaveSession(ctx, rec); err != nil {
				g.log.Warn("persisting disconnected session failed", "session_id", id.String(), "error", err)
			}
		} else {
			g.log.Warn("encoding disconnected session state failed", "session_id", id.String(), "error", encErr)
		}
	}

	if err := g.rpc.SessionDisconnected(ctx, id); err != nil {
		g.log.Debug("session disconnected notify failed", "session_id", id.String(), "error", err)
	}

	g.log.Info("connection closed", "session_id", id.String())
}

func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}
