package ir

// EventKind identifies what happened to a clock.
type EventKind string

const (
	KindFork     EventKind = "fork"
	KindWait     EventKind = "wait"
	KindResume   EventKind = "resume"
	KindTempo    EventKind = "tempo"
	KindFinish   EventKind = "finish"
	KindRelease  EventKind = "release"
	KindKill     EventKind = "kill"
	KindReparent EventKind = "reparent"
	KindMark     EventKind = "mark"
	KindWarning  EventKind = "warning"
)

// Kinds lists every event kind in a stable order.
var Kinds = []EventKind{
	KindFork, KindWait, KindResume, KindTempo, KindFinish,
	KindRelease, KindKill, KindReparent, KindMark, KindWarning,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one entry of a session trace.
//
// Beat and Time are positions in the clock's own frame; MasterTime is the
// scheduler's logical time and Wall the time source reading when the event
// was recorded. Parent is zero for the master clock.
type Event struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	Seq        int64     `json:"seq"`
	Kind       EventKind `json:"kind"`
	Clock      int64     `json:"clock"`
	ClockName  string    `json:"clock_name"`
	Parent     int64     `json:"parent"`
	Beat       float64   `json:"beat"`
	Time       float64   `json:"time"`
	MasterTime float64   `json:"master_time"`
	Wall       float64   `json:"wall"`
	Label      string    `json:"label,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Object converts the event into its canonical form. The id is left out:
// it is derived from the other fields. Wall is left out as well so traces
// recorded against real time still compare equal on their logical content.
func (e Event) Object() IRObject {
	obj := IRObject{
		"session":     IRString(e.Session),
		"seq":         IRInt(e.Seq),
		"kind":        IRString(e.Kind),
		"clock":       IRInt(e.Clock),
		"clock_name":  IRString(e.ClockName),
		"parent":      IRInt(e.Parent),
		"beat":        Decimal(e.Beat),
		"time":        Decimal(e.Time),
		"master_time": Decimal(e.MasterTime),
	}
	if e.Label != "" {
		obj["label"] = IRString(e.Label)
	}
	if e.Detail != "" {
		obj["detail"] = IRString(e.Detail)
	}
	return obj
}

// Session describes one run of a clock tree.
type Session struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	StartedAtWall float64 `json:"started_at_wall"`
	Policy        string  `json:"policy"`
	EngineVersion string  `json:"engine_version"`
}
