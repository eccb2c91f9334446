package persistence

import (
	"context"
	"time"

	"github.com/wyldlands/wyldlands/internal/ids"
)

// SessionRecord is the row persisted per spec.md §6's logical layout:
// sessions keyed by SessionId storing {state_variant_tag,
// state_payload_blob, last_activity}.
type SessionRecord struct {
	SessionID    ids.SessionId
	StateTag     string
	StatePayload []byte
	LastActivity time.Time
}

// QueuedInput is one row of session_input_queue: (command_text,
// queued_at), keyed by (SessionId, sequence) at the store level — the
// interface itself only ever returns or appends in FIFO order, so callers
// never see the sequence number directly.
type QueuedInput struct {
	Text     string
	QueuedAt time.Time
}

// Store is the shared persistence interface of spec.md §3/§6:
// {load_session, save_session, delete_session, enqueue_input,
// drain_inputs, expire_sessions_older_than}. The gateway uses it for
// session snapshots, reconnection-token-backed state, and the bounded
// per-session input queue; the world router uses the same store for
// authoritative session state.
type Store interface {
	// LoadSession returns nil, nil if id has no persisted record.
	LoadSession(ctx context.Context, id ids.SessionId) (*SessionRecord, error)
	SaveSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id ids.SessionId) error

	EnqueueInput(ctx context.Context, id ids.SessionId, text string, queuedAt time.Time) error
	// DrainInputs returns every queued command for id in FIFO order and
	// removes them from the store, mirroring queue.InputQueue.Drain's
	// contract for the in-memory queue it backs up.
	DrainInputs(ctx context.Context, id ids.SessionId) ([]QueuedInput, error)

	// ExpireSessionsOlderThan returns the ids of every session whose
	// last_activity is strictly before cutoff, for the reaper of
	// spec.md §6 to act on.
	ExpireSessionsOlderThan(ctx context.Context, cutoff time.Time) ([]ids.SessionId, error)
}
