// Package rpcconn implements the single bidirectional RPC channel of
// spec.md §4.4/§6: one connection over which the gateway calls the world
// and the world calls back the gateway, multiplexed by Envelope.Op and
// correlated by Envelope.CallID. Each side is simultaneously a caller and
// a callee on the same Conn.
package rpcconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wyldlands/wyldlands/internal/rpcwire"
)

// ErrClosed is returned by Call and Serve once the connection has been
// torn down.
var ErrClosed = errors.New("rpc connection closed")

// HandlerFunc answers one inbound call. It returns the response payload
// (marshaled by Conn when it writes the reply) or an error, which is sent
// back as Envelope.Err.
type HandlerFunc func(ctx context.Context, payload rpcwire.Envelope) (any, error)

// Conn wraps one net.Conn-like stream (anything satisfying io.ReadWriter)
// with call/response correlation in both directions. Writes are
// serialized with a mutex since rpcwire.WriteFrame is not safe for
// concurrent use on the same writer — mirroring the teacher's
// per-connection write serialization (GameClient's single writePump
// goroutine), except here both Call and handler responses write, so a
// mutex replaces a dedicated writer goroutine.
type Conn struct {
	rw io.ReadWriter

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcwire.Envelope

	nextCallID atomic.Uint64

	handlers map[string]HandlerFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps rw. handlers maps an inbound Envelope.Op to the function that
// answers it; an Op with no registered handler gets an "unknown
// operation" error back, which the caller sees as a *RemoteError.
func New(rw io.ReadWriter, handlers map[string]HandlerFunc) *Conn {
	return &Conn{
		rw:       rw,
		pending:  make(map[uint64]chan rpcwire.Envelope),
		handlers: handlers,
		closed:   make(chan struct{}),
	}
}

// Serve runs the read loop until the stream errors or ctx is cancelled.
// It must run in its own goroutine; Call from other goroutines delivers
// their requests through it.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.Close()

	type frameResult struct {
		env rpcwire.Envelope
		err error
	}
	frames := make(chan frameResult)

	go func() {
		for {
			var env rpcwire.Envelope
			err := rpcwire.ReadFrame(c.rw, &env)
			select {
			case frames <- frameResult{env, err}:
			case <-c.closed:
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
			return ctx.Err()
		case <-c.closed:
			return ErrClosed
		case fr := <-frames:
			if fr.err != nil {
				return fr.err
			}
			c.handleIncoming(ctx, fr.env)
		}
	}
}

func (c *Conn) handleIncoming(ctx context.Context, env rpcwire.Envelope) {
	if env.Reply {
		c.pendingMu.Lock()
		ch, ok := c.pending[env.CallID]
		if ok {
			delete(c.pending, env.CallID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- env
		} else {
			slog.Warn("reply for unknown or already-completed call", "op", env.Op, "call_id", env.CallID)
		}
		return
	}

	handler, ok := c.handlers[env.Op]
	if !ok {
		slog.Warn("rpc call for unregistered operation", "op", env.Op)
		c.reply(env.CallID, env.Op, nil, fmt.Errorf("unknown operation %q", env.Op))
		return
	}

	// Each inbound call is handled in its own goroutine so a slow handler
	// (e.g. one doing a persistence round trip) never blocks the read
	// loop from picking up the next frame, matching spec.md §5's
	// suspend-only-on-io contract.
	go func() {
		result, err := handler(ctx, env)
		c.reply(env.CallID, env.Op, result, err)
	}()
}

func (c *Conn) reply(callID uint64, op string, result any, err error) {
	env := rpcwire.Envelope{CallID: callID, Op: op, Reply: true}
	if err != nil {
		env.Err = err.Error()
	} else if result != nil {
		e, buildErr := rpcwire.Encode(op, callID, result)
		if buildErr != nil {
			env.Err = buildErr.Error()
		} else {
			env.Payload = e.Payload
		}
	}

	c.writeMu.Lock()
	writeErr := rpcwire.WriteFrame(c.rw, env)
	c.writeMu.Unlock()
	if writeErr != nil {
		slog.Warn("failed to write rpc response", "op", op, "error", writeErr)
	}
}

// Call sends op with req as its payload and waits for the correlated
// response, decoding its payload into resp (if non-nil). Context
// cancellation and timeouts are the caller's responsibility — spec.md §5
// gives every RPC a deadline (`Trpc`), so callers are expected to derive
// ctx with a deadline before calling.
func (c *Conn) Call(ctx context.Context, op string, req, resp any) error {
	callID := c.nextCallID.Add(1)

	env, err := rpcwire.Encode(op, callID, req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}

	wait := make(chan rpcwire.Envelope, 1)
	c.pendingMu.Lock()
	c.pending[callID] = wait
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	writeErr := rpcwire.WriteFrame(c.rw, env)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.pendingMu.Lock()
		delete(c.pending, callID)
		c.pendingMu.Unlock()
		return fmt.Errorf("writing %s call: %w", op, writeErr)
	}

	select {
	case reply := <-wait:
		if reply.Err != "" {
			return &RemoteError{Op: op, Message: reply.Err}
		}
		if resp != nil {
			return reply.Decode(resp)
		}
		return nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, callID)
		c.pendingMu.Unlock()
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	}
}

// Close tears down the connection and unblocks any in-flight Call.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// RemoteError wraps an error message returned by the peer's handler.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }
