package audit

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/billingkit"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Billing audit actions recorded by Recorder.
const (
	ActionCustomerCreated      = "billing.customer.created"
	ActionSubscriptionStarted  = "billing.subscription.started"
	ActionPlanChanged          = "billing.subscription.plan_changed"
	ActionSubscriptionCanceled = "billing.subscription.cancelled"
	ActionCardUpdated          = "billing.card.updated"
	ActionCardDeclined         = "billing.card.declined"
	ActionPaymentSucceeded     = "billing.payment.succeeded"
	ActionPaymentFailed        = "billing.payment.failed"
	ActionPaymentDisputed      = "billing.payment.disputed"
)

// Recorder implements billingkit.Hooks by writing an audit event for every
// finalized lifecycle step and webhook callback. Prepare hooks stay no-ops.
//
// By default a failed audit write is logged and swallowed so a broken
// audit backend cannot abort billing passes. Deployments that must not act
// without an audit trail flip that with WithStrictRecording: hook errors
// then propagate, and the orchestrator aborts the pass.
type Recorder struct {
	billingkit.NoopHooks

	trail  Logger
	log    *slog.Logger
	strict bool
}

var _ billingkit.Hooks = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStrictRecording makes audit failures abort the billing pass.
func WithStrictRecording() RecorderOption {
	return func(r *Recorder) { r.strict = true }
}

// WithRecorderLogger sets the logger used for swallowed audit failures.
func WithRecorderLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = log }
}

// NewRecorder creates the hooks adapter over an audit logger.
// Panics if trail is nil.
func NewRecorder(trail Logger, opts ...RecorderOption) *Recorder {
	if trail == nil {
		panic("audit: logger is required")
	}

	r := &Recorder{
		trail: trail,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FinalizeNewCustomer records the creation of the remote customer.
func (r *Recorder) FinalizeNewCustomer(ctx context.Context, sub *billingkit.Subscription, customerID string, price billingkit.Money) error {
	return r.record(ctx, ActionCustomerCreated, sub,
		WithResource("customer", customerID),
		WithMetadata("amount", price.Amount),
		WithMetadata("currency", price.Currency),
	)
}

// FinalizeNewSubscription records the first subscription of the account.
func (r *Recorder) FinalizeNewSubscription(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionSubscriptionStarted, sub, planMetadata(sub)...)
}

// FinalizePlanChange records moves between two plans. New subscriptions
// and cancellations have their own actions, so passes without a previous
// or without a next plan are skipped here.
func (r *Recorder) FinalizePlanChange(ctx context.Context, sub *billingkit.Subscription) error {
	if sub.PrevPlanID == nil || sub.PlanID == nil {
		return nil
	}
	return r.record(ctx, ActionPlanChanged, sub, planMetadata(sub)...)
}

// FinalizeCancellation records the cancellation.
func (r *Recorder) FinalizeCancellation(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionSubscriptionCanceled, sub)
}

// FinalizeCardUpdate records a successful payment method change.
func (r *Recorder) FinalizeCardUpdate(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionCardUpdated, sub,
		WithMetadata("card_last4", sub.CardLast4),
	)
}

// CardWasDeclined records the rejected payment instrument.
func (r *Recorder) CardWasDeclined(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionCardDeclined, sub, WithResult(ResultFailure))
}

// PaymentSucceeded records a settled payment with its amount.
func (r *Recorder) PaymentSucceeded(ctx context.Context, sub *billingkit.Subscription, amount billingkit.Money) error {
	return r.record(ctx, ActionPaymentSucceeded, sub,
		WithMetadata("amount", amount.Amount),
		WithMetadata("currency", amount.Currency),
	)
}

// ChargeFailed records a failed charge.
func (r *Recorder) ChargeFailed(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionPaymentFailed, sub, WithResult(ResultFailure))
}

// ChargeDisputed records a chargeback.
func (r *Recorder) ChargeDisputed(ctx context.Context, sub *billingkit.Subscription) error {
	return r.record(ctx, ActionPaymentDisputed, sub, WithResult(ResultFailure))
}

func (r *Recorder) record(ctx context.Context, action string, sub *billingkit.Subscription, opts ...EventOption) error {
	eventOpts := make([]EventOption, 0, len(opts)+2)
	eventOpts = append(eventOpts, WithAccount(sub.AccountID))
	if sub.ProviderSubscriptionID != "" {
		eventOpts = append(eventOpts, WithResource("subscription", sub.ProviderSubscriptionID))
	}
	eventOpts = append(eventOpts, opts...)

	err := r.trail.Log(ctx, action, eventOpts...)
	if err == nil {
		return nil
	}
	if r.strict {
		return err
	}

	r.log.ErrorContext(ctx, "audit event not recorded",
		logger.Component("audit_recorder"),
		logger.AccountID(sub.AccountID),
		logger.Event(action),
		logger.Error(err),
	)
	return nil
}

func planMetadata(sub *billingkit.Subscription) []EventOption {
	opts := make([]EventOption, 0, 2)
	if sub.PlanID != nil {
		opts = append(opts, WithMetadata("plan_id", *sub.PlanID))
	}
	if sub.PrevPlanID != nil {
		opts = append(opts, WithMetadata("prev_plan_id", *sub.PrevPlanID))
	}
	return opts
}
