package simulation

import "fmt"

// State is the lifecycle state of a Simulation.
//
//	INITIALIZED --Start--> RUNNING <--TogglePause--> PAUSED
//	RUNNING --queue drained--> FINISHED
//	any but FINISHED --Stop--> TERMINATED
type State int

const (
	Initialized State = iota
	Running
	Paused
	Finished
	Terminated
)

var stateNames = [...]string{
	Initialized: "INITIALIZED",
	Running:     "RUNNING",
	Paused:      "PAUSED",
	Finished:    "FINISHED",
	Terminated:  "TERMINATED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further control operation can change the state.
func (s State) Terminal() bool {
	return s == Finished || s == Terminated
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown simulation state %q", text)
}
