package gateway

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyldlands/wyldlands/internal/config"
	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/persistence"
	"github.com/wyldlands/wyldlands/internal/protocol"
	"github.com/wyldlands/wyldlands/internal/protocol/line"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
	"github.com/wyldlands/wyldlands/internal/session"
	"github.com/wyldlands/wyldlands/internal/token"
	"github.com/wyldlands/wyldlands/internal/worldrpc"
)

// These tests drive spec.md §8's seed scenarios S1-S4 end to end through
// the real connection.go/gateway.go wiring: a fake client transport feeds
// bytes through the real line.Adapter into a real *Gateway, and a fake
// world answers the Gateway -> World calls (and, for S3/S4, issues the
// World -> Gateway BeginEditing callback) over a real rpcconn.Conn pair,
// exactly like cmd/gateway and cmd/worldserver wire the two processes.

// chanTransport is a transport test double driven by channels instead of
// a socket, so a test can feed the client side of a connection one
// simulated read at a time and inspect what the gateway writes back.
type chanTransport struct {
	addr string
	in   chan []byte

	mu     sync.Mutex
	out    [][]byte
	outCh  chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newChanTransport(addr string) *chanTransport {
	return &chanTransport{
		addr:   addr,
		in:     make(chan []byte, 16),
		outCh:  make(chan struct{}, 64),
		closed: make(chan struct{}),
	}
}

func (t *chanTransport) readChunk() ([]byte, error) {
	select {
	case b := <-t.in:
		return b, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *chanTransport) writeChunk(data []byte) error {
	t.mu.Lock()
	t.out = append(t.out, append([]byte(nil), data...))
	t.mu.Unlock()
	select {
	case t.outCh <- struct{}{}:
	default:
	}
	return nil
}

func (t *chanTransport) setReadDeadline(time.Time) error { return nil }

func (t *chanTransport) close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *chanTransport) remoteAddr() string { return t.addr }

func (t *chanTransport) sendLine(s string) {
	t.in <- []byte(s + "\n")
}

// outputCount reports how many chunks the gateway has written back so far.
func (t *chanTransport) outputCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.out)
}

func (t *chanTransport) lastOutput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.out) == 0 {
		return ""
	}
	return string(t.out[len(t.out)-1])
}

// memStore is an in-memory persistence.Store test double; the pgx-backed
// implementation lives in internal/persistence itself.
type memStore struct {
	mu       sync.Mutex
	sessions map[ids.SessionId]persistence.SessionRecord
	queues   map[ids.SessionId][]persistence.QueuedInput
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[ids.SessionId]persistence.SessionRecord),
		queues:   make(map[ids.SessionId][]persistence.QueuedInput),
	}
}

func (s *memStore) LoadSession(ctx context.Context, id ids.SessionId) (*persistence.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStore) SaveSession(ctx context.Context, rec persistence.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = rec
	return nil
}

func (s *memStore) DeleteSession(ctx context.Context, id ids.SessionId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) EnqueueInput(ctx context.Context, id ids.SessionId, text string, queuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = append(s.queues[id], persistence.QueuedInput{Text: text, QueuedAt: queuedAt})
	return nil
}

func (s *memStore) DrainInputs(ctx context.Context, id ids.SessionId) ([]persistence.QueuedInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[id]
	delete(s.queues, id)
	return q, nil
}

func (s *memStore) ExpireSessionsOlderThan(ctx context.Context, cutoff time.Time) ([]ids.SessionId, error) {
	return nil, nil
}

// fakeWorld answers the Gateway -> World calls worldrpc.HandlerTable
// dispatches, recording every SendInput call in order; quitOn names the
// input text (if any) that should be answered with gatewayrpc.InputQuit.
type fakeWorld struct {
	mu            sync.Mutex
	authOutcome   gatewayrpc.AuthOutcome
	accountID     string
	quitOn        string
	inputs        []string
	editMarkers   []string
	lastSessionID ids.SessionId
}

func (w *fakeWorld) AuthenticateSession(ctx context.Context, sessionID ids.SessionId, creds gatewayrpc.Credentials) (gatewayrpc.AuthOutcome, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSessionID = sessionID
	return w.authOutcome, w.accountID, nil
}

func (w *fakeWorld) ListCharacters(ctx context.Context, sessionID ids.SessionId) ([]gatewayrpc.CharacterSummary, error) {
	return nil, nil
}

func (w *fakeWorld) CreateCharacter(ctx context.Context, sessionID ids.SessionId, name string) (string, error) {
	return "", nil
}

func (w *fakeWorld) SelectCharacter(ctx context.Context, sessionID ids.SessionId, characterID string) error {
	return nil
}

func (w *fakeWorld) SendInput(ctx context.Context, sessionID ids.SessionId, input string) (gatewayrpc.InputOutcome, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSessionID = sessionID
	w.inputs = append(w.inputs, input)

	if saved, content, isMarker := protocol.DecodeEditMarker(input); isMarker {
		if saved {
			w.editMarkers = append(w.editMarkers, "save:"+content)
		} else {
			w.editMarkers = append(w.editMarkers, "cancel")
		}
		return gatewayrpc.InputOk, "", nil
	}

	if w.quitOn != "" && input == w.quitOn {
		return gatewayrpc.InputQuit, "", nil
	}
	return gatewayrpc.InputOk, "", nil
}

func (w *fakeWorld) SessionDisconnected(ctx context.Context, sessionID ids.SessionId) error { return nil }
func (w *fakeWorld) SessionReconnected(ctx context.Context, sessionID ids.SessionId) error  { return nil }
func (w *fakeWorld) Heartbeat(ctx context.Context, sessionID ids.SessionId) error           { return nil }

func (w *fakeWorld) inputsSnapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.inputs...)
}

func (w *fakeWorld) sessionID() ids.SessionId {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSessionID
}

// newTestGateway wires a *Gateway to world over a real rpcconn.Conn pair
// (via net.Pipe), exactly like cmd/gateway/cmd/worldserver wire the two
// processes, and returns a *worldrpc.Client the test can use to issue
// World -> Gateway callbacks such as BeginEditing.
func newTestGateway(t *testing.T, world worldrpc.Handlers) (*Gateway, *worldrpc.Client, func()) {
	t.Helper()

	gatewaySide, worldSide := net.Pipe()

	gatewayHandlers := make(map[string]rpcconn.HandlerFunc)
	gatewayConn := rpcconn.New(gatewaySide, gatewayHandlers)
	rpcClient := gatewayrpc.NewClient(gatewayConn, time.Second)

	store := newMemStore()
	gw := New(config.DefaultGateway(), rpcClient, store, nil)
	for op, h := range gatewayrpc.HandlerTable(gw.Handlers()) {
		gatewayHandlers[op] = h
	}

	worldConn := rpcconn.New(worldSide, worldrpc.HandlerTable(world))
	worldClient := worldrpc.NewClient(worldConn, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go gatewayConn.Serve(ctx)
	go worldConn.Serve(ctx)

	return gw, worldClient, func() {
		cancel()
		gatewaySide.Close()
		worldSide.Close()
	}
}

func TestS1HappyPathLoginAndLogout(t *testing.T) {
	world := &fakeWorld{authOutcome: gatewayrpc.AuthOk, accountID: "acct-1", quitOn: "quit"}
	gw, _, cleanup := newTestGateway(t, world)
	defer cleanup()

	tr := newChanTransport("127.0.0.1:5000")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		gw.serve(ctx, tr, session.ProtocolLineTerminal, line.New())
		close(done)
	}()

	tr.sendLine("login alice hunter2")
	tr.sendLine("look")
	tr.sendLine("quit")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not end after quit")
	}

	assert.Equal(t, []string{"look", "quit"}, world.inputsSnapshot())

	snap, err := gw.registry.Snapshot(world.sessionID())
	require.NoError(t, err)
	assert.Equal(t, session.KindClosed, snap.State.Kind(), "clean quit must reach Closed directly, with no reconnection token")
}

func TestS2ReconnectionReplaysQueuedInput(t *testing.T) {
	world := &fakeWorld{authOutcome: gatewayrpc.AuthOk, accountID: "acct-1"}
	gw, _, cleanup := newTestGateway(t, world)
	defer cleanup()

	tr1 := newChanTransport("127.0.0.1:5001")
	ctx1, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan struct{})
	go func() {
		gw.serve(ctx1, tr1, session.ProtocolLineTerminal, line.New())
		close(done1)
	}()

	tr1.sendLine("login alice hunter2")
	tr1.sendLine("north")

	require.Eventually(t, func() bool {
		return len(world.inputsSnapshot()) >= 1
	}, time.Second, 5*time.Millisecond)

	id := world.sessionID()

	// Kill the socket: a recoverable disconnect, not a quit.
	tr1.close()
	cancel1()
	select {
	case <-done1:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not end after transport close")
	}

	snap, err := gw.registry.Snapshot(id)
	require.NoError(t, err)
	disc, ok := snap.State.(session.Disconnected)
	require.True(t, ok, "a dropped Authenticated session must be disconnected with a reconnection token")
	tokenText := token.Encode(disc.Token)

	// Simulate the gateway being asked to enqueue commands while the
	// session sits disconnected.
	gw.enqueue(context.Background(), id, "n")
	gw.enqueue(context.Background(), id, "look")
	gw.enqueue(context.Background(), id, "inv")

	tr2 := newChanTransport("127.0.0.1:5002")
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	done2 := make(chan struct{})
	go func() {
		gw.serve(ctx2, tr2, session.ProtocolLineTerminal, line.New())
		close(done2)
	}()

	tr2.sendLine("reconnect " + tokenText)

	require.Eventually(t, func() bool {
		return len(world.inputsSnapshot()) >= 4
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"north", "n", "look", "inv"}, world.inputsSnapshot())
	assert.Equal(t, id, world.sessionID(), "reconnection must resume the original session id")

	snap, err = gw.registry.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, session.KindAuthenticated, snap.State.Kind())
	auth := snap.State.(session.Authenticated)
	assert.IsType(t, session.Playing{}, auth.Mode)

	gw.queuesMu.Lock()
	_, stillQueued := gw.queues[id]
	gw.queuesMu.Unlock()
	assert.False(t, stillQueued, "queue must be empty after replay")

	tr2.close()
	cancel2()
	<-done2
}

func TestS3EditSaveSendsExactlyOneMarkerInput(t *testing.T) {
	world := &fakeWorld{authOutcome: gatewayrpc.AuthOk, accountID: "acct-1"}
	gw, worldClient, cleanup := newTestGateway(t, world)
	defer cleanup()

	tr := newChanTransport("127.0.0.1:5003")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		gw.serve(ctx, tr, session.ProtocolLineTerminal, line.New())
		close(done)
	}()

	tr.sendLine("login alice hunter2")
	require.Eventually(t, func() bool {
		return world.sessionID() != (ids.SessionId{})
	}, time.Second, 5*time.Millisecond)
	id := world.sessionID()

	require.NoError(t, worldClient.BeginEditing(context.Background(), id, "Room Desc", "old text", "handle-1"))

	require.Eventually(t, func() bool {
		return tr.outputCount() >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, tr.lastOutput(), "Room Desc")

	before := len(world.inputsSnapshot())
	tr.sendLine("new text")
	tr.sendLine(".save")

	require.Eventually(t, func() bool {
		return len(world.inputsSnapshot()) == before+1
	}, time.Second, 5*time.Millisecond)

	world.mu.Lock()
	markers := append([]string(nil), world.editMarkers...)
	world.mu.Unlock()
	require.Len(t, markers, 1, "exactly one SendInput for the whole edit, no per-keystroke calls")
	assert.Equal(t, "save:new text\n", markers[0])

	require.Eventually(t, func() bool {
		snap, err := gw.registry.Snapshot(id)
		if err != nil {
			return false
		}
		auth, ok := snap.State.(session.Authenticated)
		if !ok {
			return false
		}
		_, editing := auth.Mode.(session.Editing)
		return !editing
	}, time.Second, 5*time.Millisecond)

	tr.close()
	cancel()
	<-done
}

func TestS4EditCancelDiscardsBuffer(t *testing.T) {
	world := &fakeWorld{authOutcome: gatewayrpc.AuthOk, accountID: "acct-1"}
	gw, worldClient, cleanup := newTestGateway(t, world)
	defer cleanup()

	tr := newChanTransport("127.0.0.1:5004")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		gw.serve(ctx, tr, session.ProtocolLineTerminal, line.New())
		close(done)
	}()

	tr.sendLine("login alice hunter2")
	require.Eventually(t, func() bool {
		return world.sessionID() != (ids.SessionId{})
	}, time.Second, 5*time.Millisecond)
	id := world.sessionID()

	require.NoError(t, worldClient.BeginEditing(context.Background(), id, "Room Desc", "old text", "handle-1"))
	require.Eventually(t, func() bool {
		return tr.outputCount() >= 1
	}, time.Second, 5*time.Millisecond)

	before := len(world.inputsSnapshot())
	tr.sendLine("discarded draft")
	tr.sendLine(".cancel")

	require.Eventually(t, func() bool {
		return len(world.inputsSnapshot()) == before+1
	}, time.Second, 5*time.Millisecond)

	world.mu.Lock()
	markers := append([]string(nil), world.editMarkers...)
	world.mu.Unlock()
	require.Len(t, markers, 1)
	assert.Equal(t, "cancel", markers[0])

	require.Eventually(t, func() bool {
		snap, err := gw.registry.Snapshot(id)
		if err != nil {
			return false
		}
		auth, ok := snap.State.(session.Authenticated)
		if !ok {
			return false
		}
		_, editing := auth.Mode.(session.Editing)
		return !editing
	}, time.Second, 5*time.Millisecond)

	c, ok := gw.lookupConn(id)
	require.True(t, ok)
	assert.Empty(t, c.editBuffer, "cancelled edit state must be discarded, not carried into the next edit")

	tr.close()
	cancel()
	<-done
}
