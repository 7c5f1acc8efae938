package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/clocktree/internal/ir"
)

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	ClockName string
	Clock     int64
	Kinds     []ir.EventKind
	FromSeq   int64 // inclusive
	ToSeq     int64 // inclusive; zero means no upper bound
}

// ReadSession retrieves a single session by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.Session, error) {
	var sess ir.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, started_at_wall, policy, engine_version
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Name, &sess.StartedAtWall, &sess.Policy, &sess.EngineVersion)
	if err != nil {
		return ir.Session{}, err
	}
	return sess, nil
}

// HasSession reports whether a session with id has been recorded.
func (s *Store) HasSession(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return n > 0, nil
}

// ListSessions returns every session ordered by id. Session ids are UUIDv7,
// so this is creation order.
//
// Returns an empty slice (not nil) if the store has no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]ir.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, started_at_wall, policy, engine_version
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.Session{}
	for rows.Next() {
		var sess ir.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.StartedAtWall, &sess.Policy, &sess.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently created session.
// Returns sql.ErrNoRows if the store is empty.
func (s *Store) LatestSession(ctx context.Context) (ir.Session, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY id COLLATE BINARY DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		return ir.Session{}, err
	}
	return s.ReadSession(ctx, id)
}

// ReadEvents returns a session's events matching filter.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, sessionID string, filter EventFilter) ([]ir.Event, error) {
	query, args := buildEventQuery(sessionID, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, _, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of events recorded for a session.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE session_id = ?
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

const eventColumns = `id, session_id, seq, kind, clock_id, clock_name, parent_id,
	beat, time, master_time, wall, label, detail, canonical`

func buildEventQuery(sessionID string, f EventFilter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT " + eventColumns + " FROM events WHERE session_id = ?")
	args := []any{sessionID}

	if f.ClockName != "" {
		b.WriteString(" AND clock_name = ?")
		args = append(args, f.ClockName)
	}
	if f.Clock != 0 {
		b.WriteString(" AND clock_id = ?")
		args = append(args, f.Clock)
	}
	if len(f.Kinds) > 0 {
		b.WriteString(" AND kind IN (")
		for i, k := range f.Kinds {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, string(k))
		}
		b.WriteString(")")
	}
	if f.FromSeq > 0 {
		b.WriteString(" AND seq >= ?")
		args = append(args, f.FromSeq)
	}
	if f.ToSeq > 0 {
		b.WriteString(" AND seq <= ?")
		args = append(args, f.ToSeq)
	}
	b.WriteString(" ORDER BY seq ASC, id COLLATE BINARY ASC")
	return b.String(), args
}

// scanEvent scans a row into an Event and returns its stored canonical
// payload alongside.
func scanEvent(rows *sql.Rows) (ir.Event, string, error) {
	var ev ir.Event
	var kind, canonical string
	if err := rows.Scan(
		&ev.ID, &ev.Session, &ev.Seq, &kind, &ev.Clock, &ev.ClockName, &ev.Parent,
		&ev.Beat, &ev.Time, &ev.MasterTime, &ev.Wall, &ev.Label, &ev.Detail, &canonical,
	); err != nil {
		return ir.Event{}, "", fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = ir.EventKind(kind)
	return ev, canonical, nil
}
