package engine

import "github.com/roach88/clocktree/internal/ir"

// advance moves master logical time forward to t and brings every clock's
// position up to date. Positions are a function of master time only, so
// integrating each clock's envelope from its previous position is exact.
func (e *Engine) advance(t float64) {
	if t <= e.now {
		return
	}
	e.now = t
	e.advanceNode(e.master, t)
}

func (e *Engine) advanceNode(n *node, t float64) {
	if t > n.time {
		n.beat += n.env.BeatsForTime(n.time, t-n.time)
		n.time = t
	}
	for _, id := range n.children {
		if c, ok := e.nodes[id]; ok {
			e.advanceNode(c, n.beat-c.offset)
		}
	}
}

// wakeTime converts n's pending target beat into an absolute master time.
//
// The conversion walks up the ancestor chain. On each clock the remaining
// beats become elapsed time through that clock's envelope; a child's
// elapsed time is measured in its parent's beats, so the result becomes the
// parent's remaining beats. At the master, elapsed time is master time.
func (e *Engine) wakeTime(n *node) float64 {
	var warn error
	cur := n
	target := n.wakeBeat
	for {
		dt, err := cur.env.TimeForBeats(cur.time, target-cur.beat)
		if err != nil && warn == nil {
			warn = err
		}
		p, ok := e.nodes[cur.parent]
		if cur.parent == 0 || !ok {
			if warn != nil {
				e.warn(n, newNonConvergenceError(n, warn))
			}
			return cur.time + dt
		}
		target = p.beat + dt
		cur = p
	}
}

// rederive recomputes the wake time of every waiting clock in the subtree
// rooted at n. Called after n's envelope or parent changes.
func (e *Engine) rederive(n *node) {
	if n.hasTarget && n.entry != nil {
		n.wake = e.wakeTime(n)
		e.queue.reschedule(n, n.wake)
	}
	for _, id := range n.children {
		if c, ok := e.nodes[id]; ok {
			e.rederive(c)
		}
	}
}

// reparentChildren moves n's children to n's parent. Each child keeps its
// current position: its offset is rebased onto the grandparent's beat.
func (e *Engine) reparentChildren(n *node) {
	g, ok := e.nodes[n.parent]
	if !ok {
		return
	}
	for _, id := range n.children {
		c, ok := e.nodes[id]
		if !ok {
			continue
		}
		c.parent = g.id
		c.offset = g.beat - c.time
		g.children = append(g.children, c.id)
		e.emit(ir.KindReparent, c, "", n.label())
		e.rederive(c)
	}
	n.children = nil
}
