package engine

import (
	"fmt"

	"github.com/roach88/clocktree/internal/envelope"
)

// NodeID identifies a clock within a session. The master is always 1.
type NodeID int64

// State is a clock's lifecycle stage.
//
//	Active -> Waiting -> Active ... -> Finished -> Released
//
// A finished clock stays in the tree as the timing frame of its live
// children and is released once the last of them is released.
type State int

const (
	// Active means the clock's task holds the scheduler.
	Active State = iota
	// Waiting means the task is parked until a wake time (or has been
	// forked and not started yet).
	Waiting
	// Finished means the task body returned.
	Finished
	// Released means the clock has left the tree.
	Released
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Waiting:
		return "waiting"
	case Finished:
		return "finished"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// node is one clock in the tree. Nodes are owned by the engine's node
// table; a node refers to its parent by id only.
//
// Positions are kept current by Engine.advance: time is the elapsed time in
// the parent's frame (the parent's beat minus offset; master logical time
// for the master) and beat is the envelope integral over time.
type node struct {
	id       NodeID
	name     string
	parent   NodeID // zero for the master
	children []NodeID

	env    *envelope.Envelope
	offset float64 // parent beat at which this clock's time was zero
	time   float64
	beat   float64

	state  State
	killed bool
	task   *task
	handle *Clock

	// Pending wait. wakeBeat is the target on this clock; wake is the
	// absolute master time it maps to. A freshly forked clock is queued
	// without a target and starts at the time it was forked.
	hasTarget bool
	wakeBeat  float64
	wake      float64
	entry     *wakeEntry // nil unless queued

	// Parked in WaitForChildren, with no wake entry until the last child
	// leaves the tree.
	awaitChildren bool

	// Wall time of the latest resume, for processing-time logs.
	lastResumeWall float64
	drift          float64
	logProcessing  bool
}

// live reports whether operations on the clock are still allowed.
func (n *node) live() bool {
	return n.state == Active || n.state == Waiting
}

func (n *node) label() string {
	if n.name != "" {
		return n.name
	}
	return fmt.Sprintf("clock-%d", n.id)
}

func (n *node) removeChild(id NodeID) {
	for i, c := range n.children {
		if c == id {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}
