package dispatcher

import (
	"errors"
	"fmt"
	"slices"
)

// State is the position of one candidate in a digest run.
type State string

const (
	StatePending   State = "pending"
	StateComputing State = "computing"
	StateMatched   State = "matched"
	StateNoMatches State = "no_matches"
	StateNotified  State = "notified"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	StatePending:   {StateComputing, StateFailed},
	StateComputing: {StateMatched, StateNoMatches, StateFailed},
	StateMatched:   {StateNotified, StateSkipped, StateFailed},
	StateNoMatches: {StateSkipped},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// tracker walks one candidate through the transition table and never goes back.
type tracker struct {
	state State
	path  []State
}

func newTracker() *tracker {
	return &tracker{state: StatePending, path: []State{StatePending}}
}

func (t *tracker) to(next State) error {
	if !slices.Contains(transitions[t.state], next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.state, next)
	}
	t.state = next
	t.path = append(t.path, next)
	return nil
}

// must advances the tracker and panics on an illegal transition. The panic is
// recovered by the candidate task and recorded as an internal failure.
func (t *tracker) must(next State) {
	if err := t.to(next); err != nil {
		panic(err)
	}
}
