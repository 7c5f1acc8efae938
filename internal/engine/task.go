package engine

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Body is the code a clock runs. It receives its own clock and may wait,
// fork, change tempo and kill through it. Returning finishes the task.
type Body func(c *Clock) error

type resumeSignal int

const (
	resumeNormal resumeSignal = iota
	resumeKilled              // the clock was killed while parked
	resumeClosed              // the session is shutting down
)

type yieldKind int

const (
	yieldWait yieldKind = iota // parked in Wait
	yieldDone                  // body returned
)

// task runs a Body on its own goroutine. Exactly one task goroutine holds
// the scheduler at a time: the engine hands over with resume and blocks on
// yield until the task parks or returns.
type task struct {
	node *node
	body Body

	gid     atomic.Int64 // goroutine id, set when the goroutine starts
	started bool
	done    bool
	err     error

	resume chan resumeSignal
	yield  chan yieldKind
}

func newTask(n *node, body Body) *task {
	return &task{
		node:   n,
		body:   body,
		resume: make(chan resumeSignal),
		yield:  make(chan yieldKind),
	}
}

// run is the task goroutine.
func (t *task) run(e *Engine) {
	t.gid.Store(goid.Get())
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("clock %s panicked: %v", t.node.label(), r)
			e.logger.Error("task panicked",
				"session", e.session,
				"clock", t.node.label(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		t.yield <- yieldDone
	}()
	t.err = t.body(t.node.handle)
}

// park hands the scheduler back to the engine and blocks until resumed.
// Called on the task goroutine.
func (t *task) park() resumeSignal {
	t.yield <- yieldWait
	return <-t.resume
}
