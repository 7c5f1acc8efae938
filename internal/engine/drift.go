package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/clocktree/internal/ir"
)

// sleepFor blocks until the wall deadline of logical time wake and records
// the drift observed on n. Lateness beyond the behind threshold is warned
// about instead of slept.
func (e *Engine) sleepFor(ctx context.Context, n *node, wake float64) error {
	if e.fastForwarding(wake) {
		e.lastWall = e.ts.Now()
		e.lastLogical = wake
		n.drift = 0
		return nil
	}

	deadline := e.policy.deadline(e.anchor, e.lastWall, e.lastLogical, wake)
	now := e.ts.Now()
	switch {
	case deadline < now-e.behind:
		e.warn(n, &RuntimeError{
			Code:      ErrCodeBehind,
			Message:   fmt.Sprintf("running %.3fs behind real time; processing is too heavy", now-deadline),
			Clock:     n.id,
			ClockName: n.name,
		})
	case deadline > now:
		if err := e.ts.SleepUntil(ctx, deadline); err != nil {
			return err
		}
	}

	wall := e.ts.Now()
	n.drift = wall - deadline
	e.lastWall = wall
	e.lastLogical = wake
	return nil
}

// fastForwarding reports whether the wake at logical time wake should skip
// sleeping. Skipped time is removed from the wall anchor, so when the goal
// is reached absolute timing continues from the current wall time without
// trying to catch up.
func (e *Engine) fastForwarding(wake float64) bool {
	if !e.ffActive {
		return false
	}
	switch {
	case e.now >= e.ffGoal:
		e.ffActive = false
		return false
	case wake >= e.ffGoal:
		// The goal falls inside this wait: skip up to it, sleep the rest.
		e.anchor -= e.ffGoal - e.now
		e.lastLogical = e.ffGoal
		e.ffActive = false
		e.logger.Info("fast-forward complete", "session", e.session, "master_time", e.ffGoal)
		return false
	default:
		e.anchor -= wake - e.now
		return true
	}
}

// warn records a warning event and logs it, subject to the warning limit.
func (e *Engine) warn(n *node, err *RuntimeError) {
	e.emit(ir.KindWarning, n, string(err.Code), err.Error())

	if !e.limiter.Allow() {
		e.suppressed++
		return
	}
	attrs := []any{
		"session", e.session,
		"clock", n.label(),
		"code", string(err.Code),
		"master_time", e.now,
	}
	if e.suppressed > 0 {
		attrs = append(attrs, "suppressed", e.suppressed)
		e.suppressed = 0
	}
	e.logger.Warn(err.Message, attrs...)
}

// logProcessing reports the wall time n's task spent since its latest
// resume. Clocks with SetLogProcessingTime on report at info level.
func (e *Engine) logProcessing(n *node) {
	level := slog.LevelDebug
	if n.logProcessing {
		level = slog.LevelInfo
	}
	e.logger.Log(context.Background(), level, "clock processed",
		"session", e.session,
		"clock", n.label(),
		"seconds", e.ts.Now()-n.lastResumeWall,
		"master_time", e.now)
}
