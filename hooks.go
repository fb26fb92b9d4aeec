package billingkit

import "context"

// Hooks is the set of named extension points the orchestrator calls at
// defined points of a pass. The embedding application supplies an
// implementation to react to lifecycle events (send emails, record audit
// rows, adjust entitlements); embed NoopHooks to implement only the
// methods you care about.
//
// A non-nil error from any hook aborts the pass with that error as the
// abort reason and the entity is not persisted. Prepare hooks therefore act
// as vetoes that run before remote mutations; a finalize hook that errors
// aborts after the provider already changed state, so keep finalize
// implementations conservative.
type Hooks interface {
	// PrepareForPlanChange and FinalizePlanChange bracket every classified
	// transition except an unchanged plan.
	PrepareForPlanChange(ctx context.Context, sub *Subscription) error
	FinalizePlanChange(ctx context.Context, sub *Subscription) error

	// PrepareForNewSubscription and FinalizeNewSubscription bracket the
	// first subscription of an account only.
	PrepareForNewSubscription(ctx context.Context, sub *Subscription) error
	FinalizeNewSubscription(ctx context.Context, sub *Subscription) error

	// PrepareForUpgrade and FinalizeUpgrade fire for upgrades and for new
	// subscriptions, which count as upgrades.
	PrepareForUpgrade(ctx context.Context, sub *Subscription) error
	FinalizeUpgrade(ctx context.Context, sub *Subscription) error

	// PrepareForDowngrade and FinalizeDowngrade fire for downgrades only.
	PrepareForDowngrade(ctx context.Context, sub *Subscription) error
	FinalizeDowngrade(ctx context.Context, sub *Subscription) error

	// PrepareForCancellation and FinalizeCancellation fire when the plan is
	// dropped without a replacement.
	PrepareForCancellation(ctx context.Context, sub *Subscription) error
	FinalizeCancellation(ctx context.Context, sub *Subscription) error

	// FinalizeNewCustomer fires exactly once, the first time a remote
	// customer is created for the entity, before the remote subscription is
	// created. customerID is the new remote customer reference; price is
	// the plan price being subscribed to.
	FinalizeNewCustomer(ctx context.Context, sub *Subscription, customerID string, price Money) error

	// PrepareForCardUpdate and FinalizeCardUpdate bracket a pass where only
	// the payment token changed.
	PrepareForCardUpdate(ctx context.Context, sub *Subscription) error
	FinalizeCardUpdate(ctx context.Context, sub *Subscription) error

	// CardWasDeclined fires when the provider rejects the payment
	// instrument during new-customer creation, before the pass aborts.
	CardWasDeclined(ctx context.Context, sub *Subscription) error

	// Webhook-triggered callbacks, dispatched by the service webhook path
	// after provider authenticity was verified. They are serialized against
	// orchestration passes for the same entity.
	PaymentSucceeded(ctx context.Context, sub *Subscription, amount Money) error
	ChargeFailed(ctx context.Context, sub *Subscription) error
	ChargeDisputed(ctx context.Context, sub *Subscription) error
}

// NoopHooks implements Hooks with no-ops. Embed it to override only
// selected extension points.
type NoopHooks struct{}

var _ Hooks = NoopHooks{}

func (NoopHooks) PrepareForPlanChange(context.Context, *Subscription) error      { return nil }
func (NoopHooks) FinalizePlanChange(context.Context, *Subscription) error        { return nil }
func (NoopHooks) PrepareForNewSubscription(context.Context, *Subscription) error { return nil }
func (NoopHooks) FinalizeNewSubscription(context.Context, *Subscription) error   { return nil }
func (NoopHooks) PrepareForUpgrade(context.Context, *Subscription) error         { return nil }
func (NoopHooks) FinalizeUpgrade(context.Context, *Subscription) error           { return nil }
func (NoopHooks) PrepareForDowngrade(context.Context, *Subscription) error       { return nil }
func (NoopHooks) FinalizeDowngrade(context.Context, *Subscription) error         { return nil }
func (NoopHooks) PrepareForCancellation(context.Context, *Subscription) error    { return nil }
func (NoopHooks) FinalizeCancellation(context.Context, *Subscription) error      { return nil }
func (NoopHooks) FinalizeNewCustomer(context.Context, *Subscription, string, Money) error {
	return nil
}
func (NoopHooks) PrepareForCardUpdate(context.Context, *Subscription) error { return nil }
func (NoopHooks) FinalizeCardUpdate(context.Context, *Subscription) error   { return nil }
func (NoopHooks) CardWasDeclined(context.Context, *Subscription) error      { return nil }
func (NoopHooks) PaymentSucceeded(context.Context, *Subscription, Money) error {
	return nil
}
func (NoopHooks) ChargeFailed(context.Context, *Subscription) error   { return nil }
func (NoopHooks) ChargeDisputed(context.Context, *Subscription) error { return nil }
