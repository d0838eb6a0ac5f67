package supervisor

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of the runner.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateError
)

// States lists every state in declaration order.
var States = []State{StateStopped, StateRunning, StateError}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState parses the lowercase rendering produced by String.
func ParseState(v string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "stopped":
		return StateStopped, nil
	case "running":
		return StateRunning, nil
	case "error":
		return StateError, nil
	}
	return StateStopped, fmt.Errorf("unknown runner state %q", v)
}

func stateNames() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = s.String()
	}
	return out
}
