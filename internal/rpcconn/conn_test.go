package rpcconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyldlands/wyldlands/internal/rpcwire"
)

type echoReq struct{ Text string }
type echoResp struct{ Text string }

func TestCallRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn, nil)
	server := New(serverConn, map[string]HandlerFunc{
		"Echo": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			var req echoReq
			require.NoError(t, env.Decode(&req))
			return echoResp{Text: req.Text}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx)
	go server.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	var resp echoResp
	err := client.Call(callCtx, "Echo", echoReq{Text: "hello"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
}

func TestCallUnknownOperationReturnsRemoteError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn, nil)
	server := New(serverConn, map[string]HandlerFunc{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx)
	go server.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	err := client.Call(callCtx, "NoSuchOp", echoReq{Text: "x"}, nil)
	require.Error(t, err)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
}

func TestCallTimesOutWhenPeerNeverReplies(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn, nil)
	// Server has a handler that never returns within the call's deadline.
	block := make(chan struct{})
	defer close(block)
	server := New(serverConn, map[string]HandlerFunc{
		"Slow": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			<-block
			return echoResp{}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx)
	go server.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer callCancel()

	err := client.Call(callCtx, "Slow", echoReq{Text: "x"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBidirectionalCallsOnSameConnDoNotCollide(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	a := New(aConn, map[string]HandlerFunc{
		"Ping": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			return echoResp{Text: "pong-from-a"}, nil
		},
	})
	b := New(bConn, map[string]HandlerFunc{
		"Ping": func(ctx context.Context, env rpcwire.Envelope) (any, error) {
			return echoResp{Text: "pong-from-b"}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx)
	go b.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	var fromB, fromA echoResp
	errA := a.Call(callCtx, "Ping", echoReq{}, &fromB)
	errB := b.Call(callCtx, "Ping", echoReq{}, &fromA)

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "pong-from-b", fromB.Text)
	assert.Equal(t, "pong-from-a", fromA.Text)
}
