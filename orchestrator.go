package billingkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PassState tracks how far one orchestration pass progressed.
type PassState string

const (
	PassIdle            PassState = "idle"
	PassClassified      PassState = "classified"
	PassProviderMutated PassState = "provider_mutated"
	PassFinalized       PassState = "finalized"
	PassAborted         PassState = "aborted"
)

// Pass reports the outcome of one orchestration run. When Process returns a
// non-nil error the pass aborted: the caller must not persist the entity,
// and Validation carries any user-visible messages (declined card, missing
// token). RemoteCalls counts provider round trips issued before the pass
// ended.
type Pass struct {
	Transition  Transition
	State       PassState
	RemoteCalls int

	CustomerCreated     bool
	SubscriptionCreated bool
	SubscriptionUpdated bool
	SubscriptionDeleted bool
	CardUpdated         bool

	Validation ValidationError
}

// Aborted returns true when the pass did not complete.
func (p *Pass) Aborted() bool {
	return p.State == PassAborted
}

// Orchestrator drives the hook and provider sequence for one subscription
// entity. It is stateless between passes and safe for concurrent use as
// long as two passes never share one entity; serializing passes per entity
// is the caller's job (Service does it with a Locker).
type Orchestrator struct {
	provider BillingProvider
	hooks    Hooks
	plans    map[int64]Plan
	log      *slog.Logger
}

// OrchestratorOption configures optional orchestrator collaborators.
type OrchestratorOption func(*Orchestrator)

// WithHooks installs the application's hook implementation.
// Defaults to NoopHooks.
func WithHooks(hooks Hooks) OrchestratorOption {
	return func(o *Orchestrator) {
		if hooks != nil {
			o.hooks = hooks
		}
	}
}

// WithLogger installs a structured logger. Defaults to a discarding logger.
func WithLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator creates an orchestrator over the given plan catalog and
// billing provider. Panics if src or provider is nil to fail fast during
// initialization; returns an error when the catalog cannot be loaded or is
// invalid.
func NewOrchestrator(ctx context.Context, src PlanSource, provider BillingProvider, opts ...OrchestratorOption) (*Orchestrator, error) {
	if src == nil {
		panic("billingkit: PlanSource is required")
	}
	if provider == nil {
		panic("billingkit: BillingProvider is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		provider: provider,
		hooks:    NoopHooks{},
		plans:    plans,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Plans returns the loaded catalog ordered by tier.
func (o *Orchestrator) Plans() []Plan {
	return sortedPlans(o.plans)
}

// Plan returns a catalog entry by id.
func (o *Orchestrator) Plan(id int64) (Plan, error) {
	plan, ok := o.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: id %d", ErrPlanNotFound, id)
	}
	return plan, nil
}

// Process executes one orchestration pass for the entity: it classifies the
// transition between sub.PrevPlanID and sub.PlanID, runs the hook/provider
// sequence for that transition (or a card-only update when a token is
// present with an unchanged plan), updates the entity's fields in memory
// and clears the transient inputs.
//
// On a non-nil error the pass aborted: discard the entity instance instead
// of persisting it, since fields already executed in memory may have been
// written. A plan change takes priority over a supplied card token; the
// token is then only consumed for new-customer creation within the plan
// change.
func (o *Orchestrator) Process(ctx context.Context, owner Billable, sub *Subscription) (*Pass, error) {
	if owner == nil {
		panic("billingkit: owner is required")
	}
	if sub == nil {
		panic("billingkit: subscription is required")
	}

	pass := &Pass{
		State:      PassIdle,
		Validation: NewValidationError(),
	}

	pass.Transition = Classify(sub.PrevPlanID, sub.PlanID)
	pass.State = PassClassified

	log := o.log.With(
		slog.String("account_id", sub.AccountID.String()),
		slog.String("transition", string(pass.Transition)),
	)

	var err error
	switch {
	case pass.Transition.IsPlanChange():
		err = o.planChange(ctx, owner, sub, pass)
	case sub.CardToken != "":
		err = o.cardUpdate(ctx, owner, sub, pass)
	default:
		// Nothing changed; the pass completes immediately.
	}

	if err != nil {
		pass.State = PassAborted
		log.ErrorContext(ctx, "pass aborted",
			slog.Int("remote_calls", pass.RemoteCalls),
			slog.Any("error", err))
		return pass, err
	}

	// Transients never survive an abort-free pass.
	sub.CardToken = ""
	sub.CouponCode = ""
	sub.PrevPlanID = nil

	pass.State = PassFinalized
	log.InfoContext(ctx, "pass finalized", slog.Int("remote_calls", pass.RemoteCalls))
	return pass, nil
}

// planChange runs the plan-change branch: the plan-change bracket around
// the per-transition sequence.
func (o *Orchestrator) planChange(ctx context.Context, owner Billable, sub *Subscription, pass *Pass) error {
	if err := wrapHook("prepare plan change", o.hooks.PrepareForPlanChange(ctx, sub)); err != nil {
		return err
	}

	switch {
	case sub.HasRemoteCustomer():
		if err := o.changeWithCustomer(ctx, owner, sub, pass); err != nil {
			return err
		}
	case sub.HasPlan():
		if err := o.subscribeNewCustomer(ctx, owner, sub, pass); err != nil {
			return err
		}
	default:
		// The plan was dropped before the account ever reached the
		// provider. Nothing remote to undo; clear the local snapshot.
		sub.CurrentPrice = nil
	}

	return wrapHook("finalize plan change", o.hooks.FinalizePlanChange(ctx, sub))
}

// changeWithCustomer handles plan changes for an entity that already has a
// remote customer: update or create the remote subscription, or cancel it.
func (o *Orchestrator) changeWithCustomer(ctx context.Context, owner Billable, sub *Subscription, pass *Pass) error {
	// The customer fetch guards the rest of the sequence: a missing or
	// unreachable customer aborts before any mutation.
	pass.RemoteCalls++
	if _, err := o.provider.GetCustomer(ctx, sub.ProviderCustomerID); err != nil {
		return fmt.Errorf("fetch billing customer: %w", err)
	}

	if !sub.HasPlan() {
		return o.cancelSubscription(ctx, sub, pass)
	}

	plan, err := o.Plan(*sub.PlanID)
	if err != nil {
		return err
	}
	if plan.RemoteRef == "" {
		return fmt.Errorf("%w: plan %d has no remote plan reference", ErrInvalidPlanConfiguration, plan.ID)
	}

	sub.CurrentPrice = &plan.Price

	if err := o.prepareTier(ctx, pass.Transition, sub); err != nil {
		return err
	}

	quantity := seatCount(owner)
	var remote *RemoteSubscription
	if sub.HasRemoteSubscription() {
		pass.RemoteCalls++
		remote, err = o.provider.UpdateSubscription(ctx, sub.ProviderSubscriptionID, plan.RemoteRef, quantity)
		if err != nil {
			return fmt.Errorf("update remote subscription: %w", err)
		}
		pass.SubscriptionUpdated = true
	} else {
		var trialEnd *time.Time
		if plan.TrialDays > 0 {
			t := plan.TrialEndsAt(time.Now().UTC())
			trialEnd = &t
		}
		pass.RemoteCalls++
		remote, err = o.provider.CreateSubscription(ctx, CreateSubscriptionParams{
			CustomerID: sub.ProviderCustomerID,
			PlanRef:    plan.RemoteRef,
			Quantity:   quantity,
			TrialEnd:   trialEnd,
			Metadata:   customerMetadata(owner),
		})
		if err != nil {
			return fmt.Errorf("create remote subscription: %w", err)
		}
		sub.ProviderSubscriptionID = remote.ID
		pass.SubscriptionCreated = true
	}
	pass.State = PassProviderMutated
	sub.Status = statusFromRemote(remote.Status)

	return o.finalizeTier(ctx, pass.Transition, sub)
}

// cancelSubscription removes the remote subscription and clears the local
// plan state. The remote customer is kept.
func (o *Orchestrator) cancelSubscription(ctx context.Context, sub *Subscription, pass *Pass) error {
	if err := wrapHook("prepare cancellation", o.hooks.PrepareForCancellation(ctx, sub)); err != nil {
		return err
	}

	sub.CurrentPrice = nil

	if sub.HasRemoteSubscription() {
		pass.RemoteCalls++
		if err := o.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID); err != nil {
			return fmt.Errorf("cancel remote subscription: %w", err)
		}
		pass.State = PassProviderMutated
		pass.SubscriptionDeleted = true
	}
	sub.ProviderSubscriptionID = ""
	sub.Status = StatusCancelled

	return wrapHook("finalize cancellation", o.hooks.FinalizeCancellation(ctx, sub))
}

// subscribeNewCustomer handles the first subscription of an account with no
// remote customer yet: create the customer with the supplied payment token,
// then the subscription.
func (o *Orchestrator) subscribeNewCustomer(ctx context.Context, owner Billable, sub *Subscription, pass *Pass) error {
	plan, err := o.Plan(*sub.PlanID)
	if err != nil {
		return err
	}
	if plan.RemoteRef == "" {
		return fmt.Errorf("%w: plan %d has no remote plan reference", ErrInvalidPlanConfiguration, plan.ID)
	}

	// The snapshot is rolled back on the recoverable aborts below so a
	// rejected attempt leaves the entity exactly as it started.
	priorPrice := sub.CurrentPrice
	sub.CurrentPrice = &plan.Price

	if err := wrapHook("prepare new subscription", o.hooks.PrepareForNewSubscription(ctx, sub)); err != nil {
		return err
	}
	if err := wrapHook("prepare upgrade", o.hooks.PrepareForUpgrade(ctx, sub)); err != nil {
		return err
	}

	if sub.CardToken == "" {
		sub.CurrentPrice = priorPrice
		pass.Validation.Add(FieldCardToken, "A payment method is required to start a subscription.")
		return ErrMissingCardToken
	}

	couponCode, trialEnd := resolveCouponAndTrial(owner, sub, plan)

	pass.RemoteCalls++
	customer, err := o.provider.CreateCustomer(ctx, CreateCustomerParams{
		Description: owner.BillingDescription(),
		Email:       owner.BillingEmail(),
		CardToken:   sub.CardToken,
		CouponCode:  couponCode,
		Metadata:    customerMetadata(owner),
	})
	if err != nil {
		var decline *DeclineError
		if errors.As(err, &decline) {
			sub.CurrentPrice = priorPrice
			pass.Validation.Add(FieldCard, decline.UserMessage())
			if hookErr := o.hooks.CardWasDeclined(ctx, sub); hookErr != nil {
				return errors.Join(err, hookErr)
			}
			return err
		}
		return fmt.Errorf("create billing customer: %w", err)
	}
	pass.State = PassProviderMutated
	pass.CustomerCreated = true

	if err := wrapHook("finalize new customer", o.hooks.FinalizeNewCustomer(ctx, sub, customer.ID, plan.Price)); err != nil {
		return err
	}
	sub.ProviderCustomerID = customer.ID

	pass.RemoteCalls++
	remote, err := o.provider.CreateSubscription(ctx, CreateSubscriptionParams{
		CustomerID: customer.ID,
		PlanRef:    plan.RemoteRef,
		Quantity:   seatCount(owner),
		TrialEnd:   trialEnd,
		Metadata:   customerMetadata(owner),
	})
	if err != nil {
		// The customer exists remotely but the subscription does not; the
		// pass aborts and nothing is committed locally. The next pass
		// starts over from the stored entity.
		return fmt.Errorf("create remote subscription: %w", err)
	}
	sub.ProviderSubscriptionID = remote.ID
	pass.SubscriptionCreated = true

	if customer.DefaultCard != nil {
		sub.CardLast4 = customer.DefaultCard.Last4
	}
	if trialEnd != nil {
		sub.Status = StatusTrialing
	} else {
		sub.Status = statusFromRemote(remote.Status)
	}

	if err := wrapHook("finalize new subscription", o.hooks.FinalizeNewSubscription(ctx, sub)); err != nil {
		return err
	}
	return wrapHook("finalize upgrade", o.hooks.FinalizeUpgrade(ctx, sub))
}

// cardUpdate runs the card-only branch: the plan is unchanged and a payment
// token was supplied.
func (o *Orchestrator) cardUpdate(ctx context.Context, owner Billable, sub *Subscription, pass *Pass) error {
	if err := wrapHook("prepare card update", o.hooks.PrepareForCardUpdate(ctx, sub)); err != nil {
		return err
	}

	if !sub.HasRemoteCustomer() {
		pass.Validation.Add(FieldCardToken, "No billing customer on file for this account.")
		return fmt.Errorf("%w: account %s", ErrMissingProviderCustomerID, owner.BillingID())
	}

	pass.RemoteCalls++
	if _, err := o.provider.GetCustomer(ctx, sub.ProviderCustomerID); err != nil {
		return fmt.Errorf("fetch billing customer: %w", err)
	}

	pass.RemoteCalls++
	card, err := o.provider.UpdateCustomerCard(ctx, sub.ProviderCustomerID, sub.CardToken)
	if err != nil {
		return fmt.Errorf("update payment instrument: %w", err)
	}
	pass.State = PassProviderMutated
	pass.CardUpdated = true
	if card != nil {
		sub.CardLast4 = card.Last4
	}

	return wrapHook("finalize card update", o.hooks.FinalizeCardUpdate(ctx, sub))
}

// prepareTier fires the upgrade or downgrade prepare hook per the
// classification; new subscriptions count as upgrades.
func (o *Orchestrator) prepareTier(ctx context.Context, t Transition, sub *Subscription) error {
	if t == TransitionDowngrade {
		return wrapHook("prepare downgrade", o.hooks.PrepareForDowngrade(ctx, sub))
	}
	return wrapHook("prepare upgrade", o.hooks.PrepareForUpgrade(ctx, sub))
}

// finalizeTier mirrors prepareTier after the provider mutation.
func (o *Orchestrator) finalizeTier(ctx context.Context, t Transition, sub *Subscription) error {
	if t == TransitionDowngrade {
		return wrapHook("finalize downgrade", o.hooks.FinalizeDowngrade(ctx, sub))
	}
	return wrapHook("finalize upgrade", o.hooks.FinalizeUpgrade(ctx, sub))
}

// resolveCouponAndTrial combines the transient coupon code with the owner's
// coupon capability. An explicit code wins; free-trial coupons and plan
// trials convert into a trial window, the coupon's taking precedence.
func resolveCouponAndTrial(owner Billable, sub *Subscription, plan Plan) (string, *time.Time) {
	code := sub.CouponCode
	var trialEnd *time.Time

	if coupon := ownerCoupon(owner); coupon != nil {
		if code == "" {
			code = coupon.Code
		}
		if coupon.FreeTrial && !coupon.TrialEnd.IsZero() {
			t := coupon.TrialEnd.UTC()
			trialEnd = &t
		}
	}

	if trialEnd == nil && plan.TrialDays > 0 {
		t := plan.TrialEndsAt(time.Now().UTC())
		trialEnd = &t
	}

	return code, trialEnd
}

// statusFromRemote maps the provider's raw status onto the local one.
func statusFromRemote(remote string) Status {
	switch remote {
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCancelled
	default:
		return StatusActive
	}
}

// wrapHook annotates a hook rejection with the extension point that raised it.
func wrapHook(stage string, err error) error {
	if err != nil {
		return fmt.Errorf("%s hook: %w", stage, err)
	}
	return nil
}
