package email

import (
	"context"
	"log/slog"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// EmailResolver maps an account to its billing email address.
type EmailResolver func(ctx context.Context, accountID uuid.UUID) (string, error)

// ComposeParams carries the subscription state a composer renders from.
// Amount is set for payment events only.
type ComposeParams struct {
	Subscription *billingkit.Subscription
	Amount       *billingkit.Money
}

// Message is a composed email before rendering and delivery.
type Message struct {
	Subject string
	Body    templ.Component
}

// Composer builds the message for one lifecycle event. A nil Composer in
// Templates silences that event.
type Composer func(p ComposeParams) Message

// Templates maps lifecycle events to their composers.
type Templates struct {
	SubscriptionStarted   Composer
	PlanChanged           Composer
	SubscriptionCancelled Composer
	CardUpdated           Composer
	CardDeclined          Composer
	PaymentReceipt        Composer
	PaymentFailed         Composer
	ChargeDisputed        Composer
}

// Delivery tags, used for Postmark analytics and DevSender filenames.
const (
	tagSubscriptionStarted   = "subscription-started"
	tagPlanChanged           = "plan-changed"
	tagSubscriptionCancelled = "subscription-cancelled"
	tagCardUpdated           = "card-updated"
	tagCardDeclined          = "card-declined"
	tagPaymentReceipt        = "payment-receipt"
	tagPaymentFailed         = "payment-failed"
	tagChargeDisputed        = "charge-disputed"
)

// LifecycleMailer implements billingkit.Hooks by emailing the account on
// finalize and webhook events. Prepare hooks stay no-ops: a mailer must
// never veto a billing pass, and for the same reason delivery failures are
// logged instead of returned, so a broken email backend cannot abort a
// pass that already changed provider state.
type LifecycleMailer struct {
	billingkit.NoopHooks

	sender    EmailSender
	resolve   EmailResolver
	tpl       Templates
	disputeTo string
	log       *slog.Logger
}

var _ billingkit.Hooks = (*LifecycleMailer)(nil)

// LifecycleMailerOption configures a LifecycleMailer.
type LifecycleMailerOption func(*LifecycleMailer)

// WithTemplates overrides default composers. Only non-nil fields replace
// the defaults, so a caller can restyle a single event.
func WithTemplates(t Templates) LifecycleMailerOption {
	return func(m *LifecycleMailer) {
		if t.SubscriptionStarted != nil {
			m.tpl.SubscriptionStarted = t.SubscriptionStarted
		}
		if t.PlanChanged != nil {
			m.tpl.PlanChanged = t.PlanChanged
		}
		if t.SubscriptionCancelled != nil {
			m.tpl.SubscriptionCancelled = t.SubscriptionCancelled
		}
		if t.CardUpdated != nil {
			m.tpl.CardUpdated = t.CardUpdated
		}
		if t.CardDeclined != nil {
			m.tpl.CardDeclined = t.CardDeclined
		}
		if t.PaymentReceipt != nil {
			m.tpl.PaymentReceipt = t.PaymentReceipt
		}
		if t.PaymentFailed != nil {
			m.tpl.PaymentFailed = t.PaymentFailed
		}
		if t.ChargeDisputed != nil {
			m.tpl.ChargeDisputed = t.ChargeDisputed
		}
	}
}

// WithDisputeRecipient routes dispute notifications to a fixed address,
// typically an operations inbox, instead of the account's email.
func WithDisputeRecipient(addr string) LifecycleMailerOption {
	return func(m *LifecycleMailer) { m.disputeTo = addr }
}

// WithMailerLogger sets the logger used for delivery failures.
func WithMailerLogger(log *slog.Logger) LifecycleMailerOption {
	return func(m *LifecycleMailer) { m.log = log }
}

// NewLifecycleMailer creates the hooks adapter.
// Panics if sender or resolve is nil.
func NewLifecycleMailer(sender EmailSender, resolve EmailResolver, opts ...LifecycleMailerOption) *LifecycleMailer {
	if sender == nil {
		panic("email: sender is required")
	}
	if resolve == nil {
		panic("email: resolver is required")
	}

	m := &LifecycleMailer{
		sender:  sender,
		resolve: resolve,
		tpl:     DefaultTemplates(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FinalizeNewSubscription sends the welcome message.
func (m *LifecycleMailer) FinalizeNewSubscription(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.SubscriptionStarted, tagSubscriptionStarted, nil, "")
	return nil
}

// FinalizePlanChange sends the plan-change message for moves between two
// plans. New subscriptions and cancellations have their own messages, so
// passes without a previous or without a next plan are skipped here.
func (m *LifecycleMailer) FinalizePlanChange(ctx context.Context, sub *billingkit.Subscription) error {
	if sub.PrevPlanID == nil || sub.PlanID == nil {
		return nil
	}
	m.deliver(ctx, sub, m.tpl.PlanChanged, tagPlanChanged, nil, "")
	return nil
}

// FinalizeCancellation confirms the cancellation.
func (m *LifecycleMailer) FinalizeCancellation(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.SubscriptionCancelled, tagSubscriptionCancelled, nil, "")
	return nil
}

// FinalizeCardUpdate confirms the new payment method.
func (m *LifecycleMailer) FinalizeCardUpdate(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.CardUpdated, tagCardUpdated, nil, "")
	return nil
}

// CardWasDeclined tells the account its card was rejected.
func (m *LifecycleMailer) CardWasDeclined(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.CardDeclined, tagCardDeclined, nil, "")
	return nil
}

// PaymentSucceeded sends a receipt.
func (m *LifecycleMailer) PaymentSucceeded(ctx context.Context, sub *billingkit.Subscription, amount billingkit.Money) error {
	m.deliver(ctx, sub, m.tpl.PaymentReceipt, tagPaymentReceipt, &amount, "")
	return nil
}

// ChargeFailed starts dunning.
func (m *LifecycleMailer) ChargeFailed(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.PaymentFailed, tagPaymentFailed, nil, "")
	return nil
}

// ChargeDisputed notifies about a chargeback, to the dispute recipient
// when one is configured.
func (m *LifecycleMailer) ChargeDisputed(ctx context.Context, sub *billingkit.Subscription) error {
	m.deliver(ctx, sub, m.tpl.ChargeDisputed, tagChargeDisputed, nil, m.disputeTo)
	return nil
}

func (m *LifecycleMailer) deliver(ctx context.Context, sub *billingkit.Subscription, compose Composer, tag string, amount *billingkit.Money, overrideTo string) {
	if compose == nil {
		return
	}

	to := overrideTo
	if to == "" {
		resolved, err := m.resolve(ctx, sub.AccountID)
		if err != nil {
			m.logFailure(ctx, sub, tag, err)
			return
		}
		if resolved == "" {
			m.logFailure(ctx, sub, tag, ErrNoRecipient)
			return
		}
		to = resolved
	}

	msg := compose(ComposeParams{Subscription: sub, Amount: amount})
	body, err := Render(ctx, msg.Body)
	if err != nil {
		m.logFailure(ctx, sub, tag, err)
		return
	}

	err = m.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  msg.Subject,
		BodyHTML: body,
		Tag:      tag,
	})
	if err != nil {
		m.logFailure(ctx, sub, tag, err)
	}
}

func (m *LifecycleMailer) logFailure(ctx context.Context, sub *billingkit.Subscription, tag string, err error) {
	m.log.ErrorContext(ctx, "lifecycle email not sent",
		logger.Component("lifecycle_mailer"),
		logger.AccountID(sub.AccountID),
		logger.Event(tag),
		logger.Error(err),
	)
}
