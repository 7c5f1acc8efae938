package store

import (
	"context"
	"fmt"

	"github.com/roach88/clocktree/internal/ir"
)

// Verification is the result of checking a stored trace against itself.
type Verification struct {
	Session   string
	Events    int
	LastSeq   int64
	TraceHash string  // ir.TraceHash over the stored events
	Gaps      []int64 // seqs missing between 1 and LastSeq
	Corrupt   []int64 // seqs whose id or canonical payload disagrees with the row
}

// OK reports whether the trace is complete and consistent.
func (v Verification) OK() bool {
	return len(v.Gaps) == 0 && len(v.Corrupt) == 0
}

// VerifySession re-derives every event's id and canonical payload from its
// columns and checks that seqs are contiguous from 1. A recorder that failed
// mid-session shows up as gaps; a hand-edited row shows up as corrupt.
func (s *Store) VerifySession(ctx context.Context, sessionID string) (Verification, error) {
	v := Verification{Session: sessionID}

	if _, err := s.ReadSession(ctx, sessionID); err != nil {
		return v, fmt.Errorf("verify session %s: %w", sessionID, err)
	}

	query, args := buildEventQuery(sessionID, EventFilter{})
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return v, fmt.Errorf("verify session: query events: %w", err)
	}
	defer rows.Close()

	var events []ir.Event
	expected := int64(1)
	for rows.Next() {
		ev, stored, err := scanEvent(rows)
		if err != nil {
			return v, fmt.Errorf("verify session: %w", err)
		}
		for ; expected < ev.Seq; expected++ {
			v.Gaps = append(v.Gaps, expected)
		}
		expected = ev.Seq + 1

		id, err := ir.EventID(ev.Session, ev.Seq, ev.Kind, ev.Clock)
		if err != nil {
			return v, fmt.Errorf("verify session: %w", err)
		}
		canonical, err := marshalEvent(ev)
		if err != nil {
			return v, fmt.Errorf("verify session: %w", err)
		}
		if id != ev.ID || canonical != stored {
			v.Corrupt = append(v.Corrupt, ev.Seq)
		}

		events = append(events, ev)
		v.LastSeq = ev.Seq
	}
	if err := rows.Err(); err != nil {
		return v, fmt.Errorf("verify session: iterate events: %w", err)
	}

	v.Events = len(events)
	hash, err := ir.TraceHash(events)
	if err != nil {
		return v, fmt.Errorf("verify session: %w", err)
	}
	v.TraceHash = hash
	return v, nil
}
