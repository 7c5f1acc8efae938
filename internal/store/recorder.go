package store

import (
	"context"

	"github.com/roach88/clocktree/internal/ir"
)

// Recorder writes a running session's trace to the store. It satisfies
// engine.Recorder.
//
// Writes happen synchronously on the scheduler's goroutine, one event at a
// time. The engine logs a failed write and carries on, so a trace recorded
// through a failing store shows gaps under VerifySession.
type Recorder struct {
	ctx   context.Context
	store *Store
}

// NewRecorder returns a recorder that writes to s using ctx for every
// statement.
func NewRecorder(ctx context.Context, s *Store) *Recorder {
	return &Recorder{ctx: ctx, store: s}
}

// RecordSession stores the session row.
func (r *Recorder) RecordSession(sess ir.Session) error {
	return r.store.WriteSession(r.ctx, sess)
}

// RecordEvent stores one event.
func (r *Recorder) RecordEvent(ev ir.Event) error {
	return r.store.WriteEvent(r.ctx, ev)
}
