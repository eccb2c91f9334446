// Package gateway implements the Gateway process of spec.md §1: the
// user-facing edge that terminates client connections, runs the Protocol
// Adapter and Session Registry, and forwards normalized input to the
// World over the RPC channel of internal/gatewayrpc.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wyldlands/wyldlands/internal/config"
	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/persistence"
	"github.com/wyldlands/wyldlands/internal/pool"
	"github.com/wyldlands/wyldlands/internal/queue"
	"github.com/wyldlands/wyldlands/internal/session"
)

// maxConsecutiveSendFailures bounds how many transport failures in a row
// a session's SendInput calls may suffer before the gateway gives up on
// the world link and disconnects it outright, per spec.md §4.4/§4.7's
// "treat the session as transiently disconnected and buffer locally" —
// transient has to end somewhere. Matches the three attempts
// gatewayrpc.DefaultBackoff allows a retried call (MaxRetries+1) rather
// than inventing a new constant.
const maxConsecutiveSendFailures = 3

// Gateway wires the Session Registry, Connection Pool, and the RPC client
// to the World together, and owns the listeners and reaper that drive
// them, per spec.md §5's process boundary.
type Gateway struct {
	cfg      config.Gateway
	registry *session.Registry
	pool     *pool.Pool
	rpc      *gatewayrpc.Client
	store    persistence.Store
	log      *slog.Logger

	connsMu sync.Mutex
	conns   map[ids.SessionId]*connection

	queuesMu sync.Mutex
	queues   map[ids.SessionId]*queue.InputQueue

	ipMu    sync.Mutex
	ipCount map[string]int

	wg sync.WaitGroup
}

// New builds a Gateway. rpc is the already-dialed Gateway -> World RPC
// client; cmd/gateway owns the rpcconn.Conn's lifetime.
func New(cfg config.Gateway, rpc *gatewayrpc.Client, store persistence.Store, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		registry: session.NewRegistry(cfg.Session.ReconnectTTLDuration()),
		pool:     pool.New(),
		rpc:      rpc,
		store:    store,
		log:      log,
		conns:    make(map[ids.SessionId]*connection),
		queues:   make(map[ids.SessionId]*queue.InputQueue),
		ipCount:  make(map[string]int),
	}
}

// Handlers returns the gatewayrpc.Handlers implementation backed by g, for
// registering against the shared rpcconn.Conn.
func (g *Gateway) Handlers() gatewayrpc.Handlers { return g }

// RunReaper runs the idle-disconnected-session reaper of spec.md §6 until
// ctx is cancelled: every ReaperInterval it closes sessions whose
// reconnection token has expired.
func (g *Gateway) RunReaper(ctx context.Context) {
	interval := g.cfg.Session.ReaperIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.reapOnce(ctx)
		}
	}
}

func (g *Gateway) reapOnce(ctx context.Context) {
	expired := g.registry.ExpiredDisconnected(time.Now())
	for _, id := range expired {
		if err := g.registry.Close(id); err != nil {
			g.log.Warn("reaper: closing expired session", "session_id", id.String(), "error", err)
			continue
		}

		g.queuesMu.Lock()
		delete(g.queues, id)
		g.queuesMu.Unlock()

		if err := g.store.DeleteSession(ctx, id); err != nil {
			g.log.Warn("reaper: deleting persisted session", "session_id", id.String(), "error", err)
		}
		if err := g.rpc.SessionDisconnected(ctx, id); err != nil {
			g.log.Debug("reaper: notifying world of expired session", "session_id", id.String(), "error", err)
		}
		g.log.Info("reaper closed expired session", "session_id", id.String())
	}
}

// Shutdown broadcasts a shutdown notice to every connected session and
// waits up to DrainTimeout for their connection goroutines to finish on
// their own before returning, per spec.md §6's graceful-drain contract.
// It does not forcibly close sockets — callers close their listeners
// before calling Shutdown, and the per-connection read loops unwind when
// the underlying net.Conn/websocket.Conn is closed by the listener
// shutdown path or the client itself.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.pool.Broadcast(output.Record{
		Kind: output.KindSystem,
		Text: "server is shutting down",
	}, nil)

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(g.cfg.DrainTimeoutDuration()):
		g.log.Warn("drain timeout elapsed with connections still open")
	case <-ctx.Done():
	}
}

func (g *Gateway) trackConn(id ids.SessionId, c *connection) {
	g.connsMu.Lock()
	g.conns[id] = c
	g.connsMu.Unlock()
}

func (g *Gateway) untrackConn(id ids.SessionId) {
	g.connsMu.Lock()
	delete(g.conns, id)
	g.connsMu.Unlock()
}

func (g *Gateway) lookupConn(id ids.SessionId) (*connection, bool) {
	g.connsMu.Lock()
	defer g.connsMu.Unlock()
	c, ok := g.conns[id]
	return c, ok
}

// enqueue buffers text for id in the in-memory input queue used by the
// SendInput-transport-failure fallback of spec.md §4.4, and mirrors it to
// the persistence store so a gateway restart does not silently lose it
// (though replaying a queue surviving a restart is out of scope here —
// see DESIGN.md).
func (g *Gateway) enqueue(ctx context.Context, id ids.SessionId, text string) {
	now := time.Now().UTC()

	g.queuesMu.Lock()
	q, ok := g.queues[id]
	if !ok {
		q = queue.New(g.cfg.Session.QueueCapacity)
		g.queues[id] = q
	}
	overflowed := q.Enqueue(text, now)
	g.queuesMu.Unlock()

	if overflowed {
		g.log.Warn("input queue overflow", "session_id", id.String())
	}
	if err := g.store.EnqueueInput(ctx, id, text, now); err != nil {
		g.log.Warn("persisting queued input failed", "session_id", id.String(), "error", err)
	}
}

// allowConnection applies the MaxConnPerIP flood-protection knob
// (spec.md's distilled config carries no rate limiter of its own; this
// mirrors the teacher's LoginServer.MaxConnectionPerIP) for one listener's
// max-per-IP limit.
func (g *Gateway) allowConnection(ip string, limit int) bool {
	if limit <= 0 {
		return true
	}
	g.ipMu.Lock()
	defer g.ipMu.Unlock()
	if g.ipCount[ip] >= limit {
		return false
	}
	g.ipCount[ip]++
	return true
}

func (g *Gateway) releaseConnection(ip string) {
	g.ipMu.Lock()
	defer g.ipMu.Unlock()
	if g.ipCount[ip] <= 1 {
		delete(g.ipCount, ip)
		return
	}
	g.ipCount[ip]--
}
