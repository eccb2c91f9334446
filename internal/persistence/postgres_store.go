package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wyldlands/wyldlands/internal/ids"
)

// PostgresStore implements Store over the sessions/session_input_queue
// tables created by internal/persistence/migrations, grounded on the
// teacher's repository structs (internal/db/character_repository.go and
// friends) — one small struct per concern wrapping a shared pool, plain
// SQL rather than an ORM.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a PostgresStore over an already-migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadSession(ctx context.Context, id ids.SessionId) (*SessionRecord, error) {
	var sessionIDText string
	var rec SessionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, state_tag, state_payload, last_activity
		 FROM sessions WHERE session_id = $1`, id.String(),
	).Scan(&sessionIDText, &rec.StateTag, &rec.StatePayload, &rec.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	rec.SessionID, err = ids.ParseSessionId(sessionIDText)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, state_tag, state_payload, last_activity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE
		 SET state_tag = EXCLUDED.state_tag,
		     state_payload = EXCLUDED.state_payload,
		     last_activity = EXCLUDED.last_activity`,
		rec.SessionID.String(), rec.StateTag, rec.StatePayload, rec.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id ids.SessionId) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) EnqueueInput(ctx context.Context, id ids.SessionId, text string, queuedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_input_queue (session_id, command_text, queued_at)
		 VALUES ($1, $2, $3)`,
		id.String(), text, queuedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing input for session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) DrainInputs(ctx context.Context, id ids.SessionId) ([]QueuedInput, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning drain transaction for session %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT command_text, queued_at FROM session_input_queue
		 WHERE session_id = $1 ORDER BY sequence ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("draining inputs for session %s: %w", id, err)
	}

	var drained []QueuedInput
	for rows.Next() {
		var q QueuedInput
		if err := rows.Scan(&q.Text, &q.QueuedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning queued input for session %s: %w", id, err)
		}
		drained = append(drained, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draining inputs for session %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_input_queue WHERE session_id = $1`, id.String()); err != nil {
		return nil, fmt.Errorf("clearing drained queue for session %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing drain for session %s: %w", id, err)
	}
	return drained, nil
}

func (s *PostgresStore) ExpireSessionsOlderThan(ctx context.Context, cutoff time.Time) ([]ids.SessionId, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM sessions WHERE last_activity < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}
	defer rows.Close()

	var expired []ids.SessionId
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning expired session id: %w", err)
		}
		id, err := ids.ParseSessionId(text)
		if err != nil {
			return nil, fmt.Errorf("parsing expired session id %q: %w", text, err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}
	return expired, nil
}
