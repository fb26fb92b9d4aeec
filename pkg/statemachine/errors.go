package statemachine

import (
	"errors"
	"fmt"
)

// ErrIncompleteTransition is returned by NewTable when a transition is
// missing its From, Event, or To.
var ErrIncompleteTransition = errors.New("statemachine: transition requires from, event, and to")

// NoTransitionError reports that the table defines no edge out of From for
// Event.
type NoTransitionError struct {
	From  string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.From, e.Event)
}

// IsNoTransition reports whether err is a *NoTransitionError.
func IsNoTransition(err error) bool {
	var target *NoTransitionError
	return errors.As(err, &target)
}

// RejectedError reports that edges exist for the pair but every guard
// declined.
type RejectedError struct {
	From  string
	Event string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statemachine: transition from %q on %q rejected by guard", e.From, e.Event)
}

// IsRejected reports whether err is a *RejectedError.
func IsRejected(err error) bool {
	var target *RejectedError
	return errors.As(err, &target)
}
