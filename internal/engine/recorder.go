package engine

import "github.com/roach88/clocktree/internal/ir"

// Recorder receives the session trace. Implemented by the store's
// recorder adapter and by in-memory collectors in tests.
//
// Calls happen on whichever goroutine holds the scheduler, one at a time.
// A failing recorder is logged and never stops the session.
type Recorder interface {
	RecordSession(s ir.Session) error
	RecordEvent(ev ir.Event) error
}

type nopRecorder struct{}

func (nopRecorder) RecordSession(ir.Session) error { return nil }
func (nopRecorder) RecordEvent(ir.Event) error     { return nil }

// MemoryRecorder collects a trace in memory.
type MemoryRecorder struct {
	Sessions []ir.Session
	Events   []ir.Event
}

// RecordSession implements Recorder.
func (m *MemoryRecorder) RecordSession(s ir.Session) error {
	m.Sessions = append(m.Sessions, s)
	return nil
}

// RecordEvent implements Recorder.
func (m *MemoryRecorder) RecordEvent(ev ir.Event) error {
	m.Events = append(m.Events, ev)
	return nil
}

// Kind returns the recorded events of the given kind, in order.
func (m *MemoryRecorder) Kind(kind ir.EventKind) []ir.Event {
	var out []ir.Event
	for _, ev := range m.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// emit stamps and records one trace event for n.
func (e *Engine) emit(kind ir.EventKind, n *node, label, detail string) {
	ev := ir.Event{
		Session:    e.session,
		Seq:        e.events.Next(),
		Kind:       kind,
		Clock:      int64(n.id),
		ClockName:  n.name,
		Parent:     int64(n.parent),
		Beat:       n.beat,
		Time:       n.time,
		MasterTime: e.now,
		Wall:       e.ts.Now(),
		Label:      label,
		Detail:     detail,
	}
	id, err := ir.EventID(ev.Session, ev.Seq, ev.Kind, ev.Clock)
	if err != nil {
		e.logger.Warn("event id failed", "session", e.session, "seq", ev.Seq, "error", err)
	}
	ev.ID = id
	if err := e.recorder.RecordEvent(ev); err != nil {
		e.logger.Warn("record event failed",
			"session", e.session,
			"seq", ev.Seq,
			"kind", string(kind),
			"error", err)
	}
}
