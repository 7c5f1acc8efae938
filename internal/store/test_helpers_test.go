package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/clocktree/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string) ir.Session {
	t.Helper()
	sess := ir.Session{
		ID:            id,
		Name:          "master",
		StartedAtWall: 0,
		Policy:        "absolute",
		EngineVersion: ir.EngineVersion,
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestEvent creates an event with its id filled in.
func createTestEvent(session string, seq int64, kind ir.EventKind, clock int64, name string) ir.Event {
	return ir.Event{
		ID:         ir.MustEventID(session, seq, kind, clock),
		Session:    session,
		Seq:        seq,
		Kind:       kind,
		Clock:      clock,
		ClockName:  name,
		Beat:       float64(seq) * 0.5,
		Time:       float64(seq) * 0.25,
		MasterTime: float64(seq) * 0.25,
		Wall:       float64(seq) * 0.25,
	}
}
