// Package entitlements answers what an account may do under its current
// billing plan: create another unit of a limited resource, use a gated
// feature, or downgrade to a cheaper tier without stranding usage.
//
// It reads the same plan catalog the billing service uses, so caps and
// feature flags live in exactly one place. The account's active plan is
// resolved through its subscription record; accounts without a priced
// subscription have no entitlements.
//
// Key concepts:
//
//   - Resource: a countable entity capped by Plan.Limits ("seats", "projects")
//   - CounterFunc: reports an account's current usage of one resource
//   - Usage: current consumption paired with the plan cap
//
// Basic usage:
//
//	plans := billingkit.StaticPlanSource{
//	    {ID: 1, Name: "Starter", Limits: map[string]int64{"seats": 5}},
//	    {ID: 2, Name: "Pro", Limits: map[string]int64{"seats": billingkit.Unlimited}},
//	}
//
//	svc, err := entitlements.NewService(ctx, plans, store,
//	    entitlements.WithCounter("seats", func(ctx context.Context, accountID uuid.UUID) (int64, error) {
//	        return repo.CountSeats(ctx, accountID)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	if err := svc.CanCreate(ctx, accountID, "seats"); err != nil {
//	    if errors.Is(err, entitlements.ErrLimitExceeded) {
//	        // prompt an upgrade
//	    }
//	    return err
//	}
//
// Before moving an account to a smaller plan, verify its usage fits:
//
//	if err := svc.CanDowngrade(ctx, accountID, starterPlanID); err != nil {
//	    return err // ErrDowngradeBlocked names the offending resource
//	}
//	_, err = orchestrator.ChangePlan(ctx, accountID, starterPlanID)
//
// The catalog is loaded once at construction. Rebuild the service when
// plans change; checks themselves call the registered counters on every
// invocation, so counters should be cheap or cached.
package entitlements
