package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PolicyKind selects how the scheduler turns logical wake times into wall
// deadlines.
type PolicyKind int

const (
	// PolicyAbsolute sleeps until the wall time the wake should happen at
	// since the session started. Overhead is absorbed by the next wait, so
	// there is no cumulative drift, but a single late resume shortens the
	// following wait.
	PolicyAbsolute PolicyKind = iota
	// PolicyRelative sleeps for the full logical delta after the previous
	// wake. Each wait is as long as asked, at the cost of drift.
	PolicyRelative
	// PolicyMixed sleeps at least Proportion of the logical delta and
	// otherwise behaves like PolicyAbsolute.
	PolicyMixed
)

// TimingPolicy is a PolicyKind plus the proportion used by PolicyMixed.
// The zero value is the absolute policy.
type TimingPolicy struct {
	Kind       PolicyKind
	Proportion float64
}

// Absolute returns the default drift-free timing policy.
func Absolute() TimingPolicy { return TimingPolicy{Kind: PolicyAbsolute} }

// Relative returns the per-wait timing policy.
func Relative() TimingPolicy { return TimingPolicy{Kind: PolicyRelative} }

// Mixed returns a policy that always waits at least p of each logical
// delta. p is clamped to [0, 1]: 0 is absolute timing and 1 is relative.
func Mixed(p float64) TimingPolicy {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return TimingPolicy{Kind: PolicyMixed, Proportion: p}
}

// String returns "absolute", "relative" or "mixed(p)".
func (p TimingPolicy) String() string {
	switch p.Kind {
	case PolicyRelative:
		return "relative"
	case PolicyMixed:
		return "mixed(" + strconv.FormatFloat(p.Proportion, 'g', -1, 64) + ")"
	default:
		return "absolute"
	}
}

// ParsePolicy accepts "absolute", "relative", "mixed(p)" or a bare number
// p in [0, 1]. The empty string selects the absolute policy.
func ParsePolicy(s string) (TimingPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "absolute":
		return Absolute(), nil
	case "relative":
		return Relative(), nil
	}
	num := s
	if strings.HasPrefix(s, "mixed(") && strings.HasSuffix(s, ")") {
		num = s[len("mixed(") : len(s)-1]
	}
	p, err := strconv.ParseFloat(num, 64)
	if err != nil || p < 0 || p > 1 {
		return Absolute(), fmt.Errorf("invalid timing policy %q: want absolute, relative, or mixed(p) with p in [0,1]", s)
	}
	return Mixed(p), nil
}

// deadline returns the wall time to sleep until so that logical time wake
// is reached. anchor is the wall time of logical zero; lastWall and
// lastLogical describe the previous wake.
func (p TimingPolicy) deadline(anchor, lastWall, lastLogical, wake float64) float64 {
	delta := wake - lastLogical
	absolute := anchor + wake
	switch p.Kind {
	case PolicyRelative:
		return lastWall + delta
	case PolicyMixed:
		return math.Max(lastWall+p.Proportion*delta, absolute)
	default:
		return absolute
	}
}
