// Package statemachine provides an immutable transition table for
// validating state changes on stored entities.
//
// A Table is built once from a set of transitions and then shared: it holds
// no current state, so the same table can resolve transitions for any number
// of entities from concurrent goroutines. Guards select between competing
// edges and actions run side effects before a transition is reported; an
// action error cancels the transition.
//
//	table, err := statemachine.NewBuilder().
//		Path("pending", "approve", "active").
//		Path("active", "suspend", "suspended").
//		Build()
//	if err != nil {
//		return err
//	}
//
//	next, err := table.Next(ctx, statemachine.StringState(record.Status), statemachine.StringEvent("approve"), record)
//	if err != nil {
//		// no edge or guard declined; keep the current status
//	}
//
// Failed lookups return typed errors. IsNoTransition reports that the table
// has no edge for the pair at all, IsRejected that edges exist but every
// guard declined.
package statemachine
