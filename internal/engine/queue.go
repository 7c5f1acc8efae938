package engine

import "container/heap"

// wakeEntry is one pending resumption. seq is assigned on every push, so
// among equal wake times entries pop in push order: siblings forked in
// order start in that order, and a child forked before its parent's next
// wait starts before the parent resumes.
type wakeEntry struct {
	node  *node
	wake  float64
	seq   int64
	index int // position in the heap, maintained by wakeQueue
}

// wakeQueue is a min-heap of wake entries ordered by (wake, seq).
//
// Not thread-safe: only the goroutine holding the scheduler touches it.
type wakeQueue struct {
	entries []*wakeEntry
	seq     *Sequence
}

func newWakeQueue() *wakeQueue {
	return &wakeQueue{seq: NewSequence()}
}

func (q *wakeQueue) Len() int { return len(q.entries) }

func (q *wakeQueue) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if a.wake != b.wake {
		return a.wake < b.wake
	}
	return a.seq < b.seq
}

func (q *wakeQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

// Push and Pop implement heap.Interface; use schedule, next and cancel.
func (q *wakeQueue) Push(x any) {
	e := x.(*wakeEntry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *wakeQueue) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	q.entries = old[:n-1]
	return e
}

// schedule queues n to wake at master time wake.
func (q *wakeQueue) schedule(n *node, wake float64) {
	e := &wakeEntry{node: n, wake: wake, seq: q.seq.Next()}
	n.entry = e
	heap.Push(q, e)
}

// reschedule moves a queued node to a new wake time, keeping its seq.
func (q *wakeQueue) reschedule(n *node, wake float64) {
	if n.entry == nil {
		return
	}
	n.entry.wake = wake
	heap.Fix(q, n.entry.index)
}

// cancel removes a queued node.
func (q *wakeQueue) cancel(n *node) {
	if n.entry == nil {
		return
	}
	heap.Remove(q, n.entry.index)
	n.entry = nil
}

// peek returns the earliest entry without removing it.
func (q *wakeQueue) peek() (*wakeEntry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// next removes and returns the earliest entry.
func (q *wakeQueue) next() (*wakeEntry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	e := heap.Pop(q).(*wakeEntry)
	e.node.entry = nil
	return e, true
}
