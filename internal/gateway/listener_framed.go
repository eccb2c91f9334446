package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/wyldlands/wyldlands/internal/protocol/framed"
	"github.com/wyldlands/wyldlands/internal/session"
)

// upgrader accepts any origin: the framed listener is a game client
// endpoint, not a browser-hosted page with a same-origin concern to
// enforce, mirroring how the line-terminal listener takes any TCP peer.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeFramed listens on addr and serves the framed-message protocol of
// spec.md §4.1 over WebSocket until ctx is cancelled.
func (g *Gateway) ServeFramed(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleFramedUpgrade)

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	g.log.Info("framed listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) handleFramedUpgrade(w http.ResponseWriter, r *http.Request) {
	limit := g.cfg.Listeners.Framed.MaxConnPerIP
	ip, _, _ := splitHostPort(r.RemoteAddr)
	if !g.allowConnection(ip, limit) {
		http.Error(w, "too many connections from this address", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.releaseConnection(ip)
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	tr := newWebsocketTransport(conn)
	adapter := framed.New()
	g.serve(r.Context(), tr, session.ProtocolFramedMessage, adapter)
}
