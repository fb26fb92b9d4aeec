package billingkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/lock"
	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

// Service is the public interface for subscription lifecycle management. It
// wraps the Orchestrator with persistence and per-account serialization:
// every mutating call locks the account, loads the stored entity, runs one
// orchestration pass, and persists only when the pass completed without an
// abort.
type Service interface {
	// GetSubscription retrieves an account's subscription.
	GetSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// Plans returns the loaded plan catalog ordered by tier.
	Plans() []Plan

	// DescribePlanChange reports how switching to planID would read to the
	// account: an upgrade, a downgrade, or a first-time trial start.
	DescribePlanChange(ctx context.Context, accountID uuid.UUID, planID int64) (PlanDifference, error)

	// ChangePlan switches the account to planID, creating the billing
	// customer and remote subscription on first subscribe. A card token is
	// required for first-time subscribers and is supplied with
	// WithCardToken.
	ChangePlan(ctx context.Context, owner Billable, planID int64, opts ...ChangeOption) (*Pass, error)

	// Cancel drops the account's plan and cancels the remote subscription.
	// The billing customer is kept for resubscription.
	Cancel(ctx context.Context, owner Billable) (*Pass, error)

	// UpdateCard replaces the account's payment instrument without touching
	// the plan.
	UpdateCard(ctx context.Context, owner Billable, cardToken string) (*Pass, error)

	// CreateCheckoutLink returns a provider-hosted checkout page for the
	// plan. Plans without a remote price reference activate locally and
	// redirect straight to the success URL.
	CreateCheckoutLink(ctx context.Context, owner Billable, planID int64, opts CheckoutOptions) (*CheckoutLink, error)

	// GetCustomerPortalLink returns the provider's self-service portal for
	// the account's billing customer.
	GetCustomerPortalLink(ctx context.Context, accountID uuid.UUID) (*PortalLink, error)

	// HandleWebhook verifies and applies one provider notification. Unknown
	// entities and event types are acknowledged without effect so the
	// provider stops redelivering them.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Locker serializes work per key. Two concurrent passes for one account must
// never interleave; pkg/lock provides in-process and Redis implementations.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// CheckoutOptions carries the redirect targets for a hosted checkout.
type CheckoutOptions struct {
	Email      string // defaults to the owner's billing email
	SuccessURL string
	CancelURL  string
}

type service struct {
	flow       *Orchestrator
	store      SubscriptionStore
	locker     Locker
	log        *slog.Logger
	seenEvents *cache.LRU[string, time.Time] // nil unless WithWebhookReplayCache
}

// NewService assembles the service over an orchestrator and a store. Panics
// if flow or store is nil to fail fast during initialization. Defaults to an
// in-process keyed mutex; multi-instance deployments should install a
// distributed locker with WithLocker.
func NewService(flow *Orchestrator, store SubscriptionStore, opts ...ServiceOption) Service {
	if flow == nil {
		panic("billingkit: Orchestrator is required")
	}
	if store == nil {
		panic("billingkit: SubscriptionStore is required")
	}

	s := &service{
		flow:   flow,
		store:  store,
		locker: lock.NewKeyedMutex(),
		log:    flow.log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSubscription retrieves an account's subscription.
func (s *service) GetSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, accountID)
}

// Plans returns the loaded plan catalog ordered by tier.
func (s *service) Plans() []Plan {
	return s.flow.Plans()
}

// DescribePlanChange reports how switching to planID would read to the account.
func (s *service) DescribePlanChange(ctx context.Context, accountID uuid.UUID, planID int64) (PlanDifference, error) {
	plan, err := s.flow.Plan(planID)
	if err != nil {
		return "", err
	}

	sub, err := s.store.Get(ctx, accountID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return "", err
	}
	return sub.DescribeDifference(plan), nil
}

// ChangePlan switches the account to planID.
func (s *service) ChangePlan(ctx context.Context, owner Billable, planID int64, opts ...ChangeOption) (*Pass, error) {
	if _, err := s.flow.Plan(planID); err != nil {
		return nil, err
	}

	var req changeRequest
	for _, opt := range opts {
		opt(&req)
	}

	return s.runPass(ctx, owner, false, func(sub *Subscription) {
		sub.PlanID = &planID
		sub.CardToken = req.cardToken
		sub.CouponCode = req.couponCode
	})
}

// Cancel drops the account's plan and cancels the remote subscription.
func (s *service) Cancel(ctx context.Context, owner Billable) (*Pass, error) {
	return s.runPass(ctx, owner, true, func(sub *Subscription) {
		sub.PlanID = nil
	})
}

// UpdateCard replaces the account's payment instrument.
func (s *service) UpdateCard(ctx context.Context, owner Billable, cardToken string) (*Pass, error) {
	if cardToken == "" {
		return nil, ErrMissingCardToken
	}
	return s.runPass(ctx, owner, false, func(sub *Subscription) {
		sub.CardToken = cardToken
	})
}

// runPass serializes, loads, mutates, orchestrates, and persists. The store
// is only written after an abort-free pass, so an aborted pass leaves the
// persisted entity untouched and the transient inputs available for retry.
func (s *service) runPass(ctx context.Context, owner Billable, requireExisting bool, mutate func(*Subscription)) (*Pass, error) {
	if owner == nil {
		panic("billingkit: owner is required")
	}
	accountID := owner.BillingID()

	release, err := s.locker.Acquire(ctx, accountID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = WithAccount(ctx, accountID)

	sub, err := s.store.Get(ctx, accountID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		if requireExisting {
			return nil, err
		}
		sub = &Subscription{AccountID: accountID}
	case err != nil:
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	sub.PrevPlanID = sub.PlanID
	mutate(sub)

	pass, err := s.flow.Process(ctx, owner, sub)
	if err != nil {
		return pass, err
	}

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	if err := s.store.Save(ctx, sub); err != nil {
		return pass, fmt.Errorf("persist subscription: %w", err)
	}
	return pass, nil
}

// CreateCheckoutLink returns a provider-hosted checkout page for the plan.
func (s *service) CreateCheckoutLink(ctx context.Context, owner Billable, planID int64, opts CheckoutOptions) (*CheckoutLink, error) {
	plan, err := s.flow.Plan(planID)
	if err != nil {
		return nil, err
	}

	accountID := owner.BillingID()
	if existing, err := s.store.Get(ctx, accountID); err == nil && existing.HasPlan() {
		return nil, ErrSubscriptionAlreadyExists
	} else if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	// Plans with no remote price have nothing to collect; activate locally
	// and send the account straight to the success page.
	if plan.RemoteRef == "" {
		now := time.Now().UTC()
		sub := &Subscription{
			AccountID: accountID,
			PlanID:    &plan.ID,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Save(ctx, sub); err != nil {
			return nil, fmt.Errorf("persist subscription: %w", err)
		}
		return &CheckoutLink{
			URL:       opts.SuccessURL,
			ExpiresAt: now.Add(5 * time.Minute),
		}, nil
	}

	checkout, ok := s.flow.provider.(CheckoutProvider)
	if !ok {
		return nil, fmt.Errorf("%w: hosted checkout", ErrProviderUnsupported)
	}

	email := opts.Email
	if email == "" {
		email = owner.BillingEmail()
	}
	return checkout.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    plan.RemoteRef,
		CustomerID: accountID.String(),
		Email:      email,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	})
}

// GetCustomerPortalLink returns the provider's self-service portal.
func (s *service) GetCustomerPortalLink(ctx context.Context, accountID uuid.UUID) (*PortalLink, error) {
	sub, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !sub.HasRemoteCustomer() {
		return nil, fmt.Errorf("%w: account %s", ErrMissingProviderCustomerID, accountID)
	}

	portal, ok := s.flow.provider.(PortalProvider)
	if !ok {
		return nil, fmt.Errorf("%w: customer portal", ErrProviderUnsupported)
	}
	return portal.CustomerPortalLink(ctx, sub.ProviderCustomerID, sub.ProviderSubscriptionID)
}

// HandleWebhook verifies and applies one provider notification.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	parser, ok := s.flow.provider.(WebhookParser)
	if !ok {
		return fmt.Errorf("%w: webhook parsing", ErrProviderUnsupported)
	}

	event, err := parser.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	if event == nil {
		// The provider recognized the payload but the event type carries
		// nothing we track.
		return nil
	}

	if s.seenEvents != nil && event.EventID != "" {
		if appliedAt, seen := s.seenEvents.Get(event.EventID); seen {
			s.log.InfoContext(ctx, "webhook replay suppressed",
				slog.String("event_id", event.EventID),
				slog.String("event_type", string(event.Type)),
				slog.Time("first_applied_at", appliedAt))
			return nil
		}
	}

	if err := s.applyWebhookEvent(ctx, event); err != nil {
		return err
	}

	// Remembered only after a clean apply: a failed delivery must stay
	// eligible for the provider's retry.
	if s.seenEvents != nil && event.EventID != "" {
		s.seenEvents.Put(event.EventID, time.Now().UTC())
	}
	return nil
}

func (s *service) applyWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	resolved, err := s.resolveWebhookEntity(ctx, event)
	if errors.Is(err, ErrSubscriptionNotFound) {
		s.log.WarnContext(ctx, "webhook for unknown entity",
			slog.String("event_type", string(event.Type)),
			slog.String("provider_subscription_id", event.SubscriptionID),
			slog.String("provider_customer_id", event.CustomerID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve webhook entity: %w", err)
	}

	// Webhook delivery races orchestration passes on the same account, so
	// the entity is re-read under the account lock before dispatch.
	release, err := s.locker.Acquire(ctx, resolved.AccountID.String())
	if err != nil {
		return err
	}
	defer release()

	sub, err := s.store.Get(ctx, resolved.AccountID)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	ctx = WithAccount(ctx, sub.AccountID)
	log := s.log.With(
		slog.String("account_id", sub.AccountID.String()),
		slog.String("event_type", string(event.Type)),
	)

	switch event.Type {
	case EventPaymentSucceeded:
		var amount Money
		if event.Amount != nil {
			amount = *event.Amount
		}
		if err := s.flow.hooks.PaymentSucceeded(ctx, sub, amount); err != nil {
			return fmt.Errorf("payment succeeded hook: %w", err)
		}
		s.applyStatusEvent(ctx, log, sub, event.Type)

	case EventChargeFailed:
		if err := s.flow.hooks.ChargeFailed(ctx, sub); err != nil {
			return fmt.Errorf("charge failed hook: %w", err)
		}
		s.applyStatusEvent(ctx, log, sub, event.Type)

	case EventChargeDisputed:
		if err := s.flow.hooks.ChargeDisputed(ctx, sub); err != nil {
			return fmt.Errorf("charge disputed hook: %w", err)
		}
		s.applyStatusEvent(ctx, log, sub, event.Type)

	case EventSubscriptionCancelled:
		s.applyStatusEvent(ctx, log, sub, event.Type)
		if sub.Status == StatusCancelled {
			sub.PlanID = nil
			sub.CurrentPrice = nil
			sub.ProviderSubscriptionID = ""
		}
		log.InfoContext(ctx, "remote cancellation applied")

	case EventSubscriptionUpdated:
		if event.Status != "" {
			sub.Status = statusFromRemote(event.Status)
		}

	default:
		log.WarnContext(ctx, "unhandled webhook event type")
		return nil
	}

	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, sub); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	return nil
}

// resolveWebhookEntity finds the entity an event refers to. Subscription
// scope wins; dispute events carry only the customer reference, so customer
// scope is the fallback.
func (s *service) resolveWebhookEntity(ctx context.Context, event *WebhookEvent) (*Subscription, error) {
	if event.SubscriptionID != "" {
		sub, err := s.store.GetByProviderSubscriptionID(ctx, event.SubscriptionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
	}
	if event.CustomerID != "" {
		return s.store.GetByProviderCustomerID(ctx, event.CustomerID)
	}
	return nil, ErrSubscriptionNotFound
}

// applyStatusEvent moves the entity's status along the webhook transition
// table. An invalid jump keeps the current status; the event's hook has
// already fired by then.
func (s *service) applyStatusEvent(ctx context.Context, log *slog.Logger, sub *Subscription, event EventType) {
	next, err := statusTable.Next(ctx, statemachine.StringState(string(sub.Status)), statemachine.StringEvent(string(event)), sub)
	if err != nil {
		log.WarnContext(ctx, "status transition not applied",
			slog.String("status", string(sub.Status)),
			slog.Any("error", err))
		return
	}
	sub.Status = Status(next.Name())
}

// statusTable constrains which status jumps asynchronous provider events may
// cause. Orchestration passes set status directly from provider responses
// and do not consult the table.
var statusTable = mustStatusTable()

func mustStatusTable() *statemachine.Table {
	paid := string(EventPaymentSucceeded)
	failed := string(EventChargeFailed)
	disputed := string(EventChargeDisputed)
	cancelled := string(EventSubscriptionCancelled)

	table, err := statemachine.NewBuilder().
		Path(string(StatusTrialing), paid, string(StatusActive)).
		Path(string(StatusActive), paid, string(StatusActive)).
		Path(string(StatusPastDue), paid, string(StatusActive)).
		Path(string(StatusTrialing), failed, string(StatusPastDue)).
		Path(string(StatusActive), failed, string(StatusPastDue)).
		Path(string(StatusPastDue), failed, string(StatusPastDue)).
		Path(string(StatusTrialing), disputed, string(StatusDisputed)).
		Path(string(StatusActive), disputed, string(StatusDisputed)).
		Path(string(StatusPastDue), disputed, string(StatusDisputed)).
		Path(string(StatusCancelled), disputed, string(StatusDisputed)).
		Path(string(StatusDisputed), disputed, string(StatusDisputed)).
		Path(string(StatusTrialing), cancelled, string(StatusCancelled)).
		Path(string(StatusActive), cancelled, string(StatusCancelled)).
		Path(string(StatusPastDue), cancelled, string(StatusCancelled)).
		Path(string(StatusDisputed), cancelled, string(StatusCancelled)).
		Build()
	if err != nil {
		panic(err)
	}
	return table
}
