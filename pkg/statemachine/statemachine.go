package statemachine

import "context"

// State is a named state in a transition table.
type State interface {
	Name() string
}

// Event is a named trigger that may move an entity between states.
type Event interface {
	Name() string
}

// StringState adapts a plain string to the State interface.
type StringState string

// Name returns the state name.
func (s StringState) Name() string { return string(s) }

// StringEvent adapts a plain string to the Event interface.
type StringEvent string

// Name returns the event name.
func (e StringEvent) Name() string { return string(e) }

// Guard decides whether a transition applies. A nil guard always applies.
// The data argument carries the entity being transitioned.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs when a transition is taken. A non-nil error cancels the
// transition and is returned from Next unchanged.
type Action func(ctx context.Context, from State, event Event, to State, data any) error

// Transition describes one edge of the table.
type Transition struct {
	From   State
	Event  Event
	To     State
	Guard  Guard
	Action Action
}

// Table is an immutable transition table. Unlike a classic state machine it
// carries no current state, so one Table resolves transitions for any number
// of entities concurrently without locking.
type Table struct {
	transitions map[string]map[string][]Transition
}

// NewTable builds a table from the given transitions. Every transition must
// have a non-nil From, Event, and To.
func NewTable(transitions ...Transition) (*Table, error) {
	t := &Table{transitions: make(map[string]map[string][]Transition)}
	for _, tr := range transitions {
		if tr.From == nil || tr.Event == nil || tr.To == nil {
			return nil, ErrIncompleteTransition
		}
		from := tr.From.Name()
		if t.transitions[from] == nil {
			t.transitions[from] = make(map[string][]Transition)
		}
		t.transitions[from][tr.Event.Name()] = append(t.transitions[from][tr.Event.Name()], tr)
	}
	return t, nil
}

// Next resolves the state event leads to from the given state. Guarded
// transitions are consulted before unguarded ones, so an unguarded edge acts
// as the fallback. If the table has no edge for the pair, Next returns a
// *NoTransitionError; if every candidate guard declines, a *RejectedError.
// An action error cancels the transition and is returned as-is.
func (t *Table) Next(ctx context.Context, from State, event Event, data any) (State, error) {
	candidates := t.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return nil, &NoTransitionError{From: from.Name(), Event: event.Name()}
	}

	for _, guarded := range []bool{true, false} {
		for _, tr := range candidates {
			if (tr.Guard != nil) != guarded {
				continue
			}
			if tr.Guard != nil && !tr.Guard(ctx, from, event, data) {
				continue
			}
			if tr.Action != nil {
				if err := tr.Action(ctx, from, event, tr.To, data); err != nil {
					return nil, err
				}
			}
			return tr.To, nil
		}
	}
	return nil, &RejectedError{From: from.Name(), Event: event.Name()}
}

// Can reports whether Next would succeed, without running actions.
func (t *Table) Can(ctx context.Context, from State, event Event, data any) bool {
	for _, tr := range t.transitions[from.Name()][event.Name()] {
		if tr.Guard == nil || tr.Guard(ctx, from, event, data) {
			return true
		}
	}
	return false
}
