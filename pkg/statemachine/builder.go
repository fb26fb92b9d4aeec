package statemachine

// Builder accumulates transitions for a Table using string states and
// events, which covers the common case where states are stored as plain
// strings.
type Builder struct {
	transitions []Transition
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Path adds an unguarded edge from -> to on event.
func (b *Builder) Path(from, event, to string) *Builder {
	b.transitions = append(b.transitions, Transition{
		From:  StringState(from),
		Event: StringEvent(event),
		To:    StringState(to),
	})
	return b
}

// GuardedPath adds an edge that applies only when guard allows it.
func (b *Builder) GuardedPath(from, event, to string, guard Guard) *Builder {
	b.transitions = append(b.transitions, Transition{
		From:  StringState(from),
		Event: StringEvent(event),
		To:    StringState(to),
		Guard: guard,
	})
	return b
}

// Add appends a fully specified transition.
func (b *Builder) Add(t Transition) *Builder {
	b.transitions = append(b.transitions, t)
	return b
}

// Build assembles the table.
func (b *Builder) Build() (*Table, error) {
	return NewTable(b.transitions...)
}
