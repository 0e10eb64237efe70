package update

import "fmt"

// Phase is the coarse position of the update state machine.
type Phase int

const (
	Idle Phase = iota
	Checking
	Available
	Downloading
	Downloaded
	UpToDate
	Failed
)

var phaseNames = map[Phase]string{
	Idle:        "idle",
	Checking:    "checking",
	Available:   "available",
	Downloading: "downloading",
	Downloaded:  "downloaded",
	UpToDate:    "up-to-date",
	Failed:      "failed",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name for the UI.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the process-wide update state. Version is set for Available and
// Downloaded, Percent for Downloading, Reason for Failed.
type State struct {
	Phase   Phase   `json:"phase"`
	Version string  `json:"version,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case Available, Downloaded:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Version)
	case Downloading:
		return fmt.Sprintf("%s(%.0f%%)", s.Phase, s.Percent)
	case Failed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	default:
		return s.Phase.String()
	}
}

// canStartCycle reports whether a new check may begin from p. Failed ends a
// cycle without blocking the next one.
func (p Phase) canStartCycle() bool {
	return p == Idle || p == UpToDate || p == Failed
}
