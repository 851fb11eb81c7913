package scheduler

// State is the lifecycle state of a Scheduler.
type State int32

const (
	Constructing State = iota
	Ready
	Ticking
	Idle
	Stopping
	Stopped
)

var stateNames = [...]string{
	Constructing: "constructing",
	Ready:        "ready",
	Ticking:      "ticking",
	Idle:         "idle",
	Stopping:     "stopping",
	Stopped:      "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
