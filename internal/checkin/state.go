// Package checkin runs one voice check-in from recording to a saved entry.
package checkin

import (
	"fmt"
	"time"
)

type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateReviewing  State = "reviewing"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Forward edges plus the two recovery edges out of error. Abort is the only
// way back from recording to idle.
var transitions = map[State][]State{
	StateIdle:       {StateRecording, StateError},
	StateRecording:  {StateProcessing, StateIdle, StateError},
	StateProcessing: {StateReviewing, StateError},
	StateReviewing:  {StateGenerating, StateError},
	StateGenerating: {StateComplete, StateError},
	StateError:      {StateIdle, StateReviewing},
	StateComplete:   {},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool { return s == StateComplete }

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

func (s *Session) transition(to State, at time.Time) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", ErrValidation, s.State, to)
	}
	s.History = append(s.History, Transition{From: s.State, To: to, At: at})
	s.State = to
	s.UpdatedAt = at
	return nil
}

// fail records msg and routes through error to the recovery state.
func (s *Session) fail(back State, msg string, at time.Time) {
	s.LastError = msg
	if s.State != StateError {
		_ = s.transition(StateError, at)
	}
	_ = s.transition(back, at)
}
