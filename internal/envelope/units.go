package envelope

import (
	"fmt"
	"strings"
)

// Units selects what a ramp duration is measured in.
type Units int

const (
	// Time measures ramp durations in the owner's elapsed time.
	Time Units = iota
	// Beats measures ramp durations in the owner's own beats.
	Beats
)

func (u Units) String() string {
	if u == Beats {
		return "beats"
	}
	return "time"
}

// ParseUnits converts "time" or "beats" into Units. The empty string selects
// Time.
func ParseUnits(name string) (Units, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "time", "seconds":
		return Time, nil
	case "beats", "beat":
		return Beats, nil
	default:
		return Time, fmt.Errorf("%w: units %q", ErrInvalidShape, name)
	}
}
