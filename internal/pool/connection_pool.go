// Package pool implements the Connection Pool of spec.md §4.3: the map
// from SessionId to a live delivery channel, with non-blocking,
// per-session-ordered send and drop-oldest backpressure.
package pool

import (
	"errors"
	"sync"

	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
)

// ErrNotConnected is returned by Send when no delivery channel is
// registered for the session (disconnected, closed, or never connected).
var ErrNotConnected = errors.New("session not connected")

// DefaultBufferSize is used by Register when the caller does not size its
// own channel.
const DefaultBufferSize = 64

type binding struct {
	ch chan output.Record

	// mu guards inOverflow only. Send can run concurrently for one
	// session (Broadcast calls it, and rpcconn answers each inbound
	// SendOutput on its own goroutine), so the flag needs a lock; the
	// channel itself is already safe for concurrent use.
	mu         sync.Mutex
	inOverflow bool
}

// Pool maps SessionId to its delivery channel. Per spec.md §5 ("Connection
// Pool map uses a concurrent map; each entry's sender is independently
// usable without locking the whole pool"), the index lock only guards
// insertion/removal — sending through an already-resolved channel never
// takes the index lock.
type Pool struct {
	mu       sync.RWMutex
	bindings map[ids.SessionId]*binding
}

// New builds an empty Pool.
func New() *Pool {
	return &Pool{bindings: make(map[ids.SessionId]*binding)}
}

// Register installs ch as id's delivery channel, replacing any existing
// one — idempotent with replace semantics, as reconnection requires
// (spec.md §4.3).
func (p *Pool) Register(id ids.SessionId, ch chan output.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[id] = &binding{ch: ch}
}

// Unregister removes id's delivery channel. It does not close the
// channel — the per-connection task that owns it is responsible for
// that, since the pool only ever holds a weak handle (spec.md §3's
// ownership rule).
func (p *Pool) Unregister(id ids.SessionId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bindings, id)
}

func (p *Pool) lookup(id ids.SessionId) (*binding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bindings[id]
	return b, ok
}

// Send delivers rec to id's channel without blocking the caller. If the
// channel is full, the oldest pending record is dropped to make room; the
// first drop of a contiguous overflow burst is itself replaced by a
// single output.Lost() system record so the client sees exactly one
// notice rather than every lost line, matching spec.md §4.3's "a single
// 'output lost' system record ... per overflow burst". Subsequent drops
// within the same burst deliver the caller's real record, since the
// client has already been told output was lost.
func (p *Pool) Send(id ids.SessionId, rec output.Record) error {
	b, ok := p.lookup(id)
	if !ok {
		return ErrNotConnected
	}

	select {
	case b.ch <- rec:
		b.mu.Lock()
		b.inOverflow = false
		b.mu.Unlock()
		return nil
	default:
	}

	// Channel full: drop the oldest queued record to make room.
	select {
	case <-b.ch:
	default:
	}

	b.mu.Lock()
	firstInBurst := !b.inOverflow
	b.inOverflow = true
	b.mu.Unlock()

	toSend := rec
	if firstInBurst {
		toSend = output.Lost()
	}

	select {
	case b.ch <- toSend:
	default:
		// A concurrent drain raced us; nothing more to do non-blockingly.
	}
	return nil
}

// Broadcast sends rec to every active session for which predicate
// returns true, and reports how many sessions it was delivered (or
// queued) to.
func (p *Pool) Broadcast(rec output.Record, predicate func(ids.SessionId) bool) int {
	p.mu.RLock()
	targets := make([]ids.SessionId, 0, len(p.bindings))
	for id := range p.bindings {
		if predicate == nil || predicate(id) {
			targets = append(targets, id)
		}
	}
	p.mu.RUnlock()

	count := 0
	for _, id := range targets {
		if p.Send(id, rec) == nil {
			count++
		}
	}
	return count
}

// ActiveSessions returns the ids currently holding a delivery channel.
func (p *Pool) ActiveSessions() []ids.SessionId {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ids.SessionId, 0, len(p.bindings))
	for id := range p.bindings {
		out = append(out, id)
	}
	return out
}
