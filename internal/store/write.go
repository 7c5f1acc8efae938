package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/clocktree/internal/ir"
)

// WriteSession inserts a session record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same session
// twice is silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess ir.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("write session: id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, name, started_at_wall, policy, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Name,
		sess.StartedAtWall,
		sess.Policy,
		sess.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteEvent inserts an event record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency - an event already stored
// under the same id (or the same session and seq) is silently ignored.
//
// The event's id is computed if empty. The session must exist (foreign key
// constraint).
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	if err := writeEvent(ctx, s.db, ev); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteEvents inserts a batch of events in a single transaction. Either all
// new events are stored or none are.
func (s *Store) WriteEvents(ctx context.Context, events []ir.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, ev := range events {
		if err := writeEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

func writeEvent(ctx context.Context, db execer, ev ir.Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.ID == "" {
		id, err := ir.EventID(ev.Session, ev.Seq, ev.Kind, ev.Clock)
		if err != nil {
			return err
		}
		ev.ID = id
	}
	canonical, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events
		(id, session_id, seq, kind, clock_id, clock_name, parent_id,
		 beat, time, master_time, wall, label, detail, canonical)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID,
		ev.Session,
		ev.Seq,
		string(ev.Kind),
		ev.Clock,
		ev.ClockName,
		ev.Parent,
		ev.Beat,
		ev.Time,
		ev.MasterTime,
		ev.Wall,
		ev.Label,
		ev.Detail,
		canonical,
	)
	return err
}
