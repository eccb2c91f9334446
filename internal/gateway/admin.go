package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ServeAdmin runs the admin HTTP listener spec.md §6 calls out as
// explicitly "out of core": a single health endpoint reporting the
// process is up and how many sessions it currently holds, nothing more.
func (g *Gateway) ServeAdmin(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealthz)

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	g.log.Info("admin listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}{
		Status:         "ok",
		ActiveSessions: len(g.pool.ActiveSessions()),
	})
}
