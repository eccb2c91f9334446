package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/wyldlands/wyldlands/internal/protocol/line"
	"github.com/wyldlands/wyldlands/internal/session"
)

// ServeLineTerminal listens on addr and serves the line-terminal protocol
// of spec.md §4.1 until ctx is cancelled, mirroring the teacher's
// Server.Serve/acceptLoop shape: a background goroutine closes the
// listener on cancellation, and the accept loop itself distinguishes a
// deliberate close from a real accept error.
func (g *Gateway) ServeLineTerminal(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	g.log.Info("line-terminal listener started", "addr", addr)
	return g.acceptLineLoop(ctx, ln)
}

func (g *Gateway) acceptLineLoop(ctx context.Context, ln net.Listener) error {
	limit := g.cfg.Listeners.LineTerminal.MaxConnPerIP

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			g.log.Warn("line-terminal accept error", "error", err)
			continue
		}

		ip, _, _ := splitHostPort(conn.RemoteAddr().String())
		if !g.allowConnection(ip, limit) {
			conn.Close()
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetKeepAlive(true)
			_ = tcp.SetKeepAlivePeriod(30 * time.Second)
		}

		adapter := line.New()

		tr := newNetConnTransport(conn)
		go g.serve(ctx, tr, session.ProtocolLineTerminal, adapter)
	}
}

