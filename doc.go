// Package billingkit orchestrates the subscription lifecycle for SaaS
// applications: plan changes, card updates, cancellations, hosted checkout,
// and provider webhooks behind one small service interface.
//
// The package classifies every requested change against the stored
// subscription, runs the matching provider calls in a fixed order with
// lifecycle hooks fired around them, and persists the subscription only
// when the whole pass succeeded. Stripe and Paddle adapters ship in the
// box; any other provider plugs in through the BillingProvider interface.
//
// # Architecture
//
// The package follows a service-oriented architecture with clear separation
// of concerns:
//
//   - Service: public interface for all subscription operations
//   - Orchestrator: classifies transitions and drives provider calls
//   - Plan / PlanSource: the tier catalog with prices, limits, and features
//   - BillingProvider: abstracts the payment provider
//   - SubscriptionStore: persists subscriptions
//   - Hooks: lifecycle callbacks around each phase of a pass
//
// Each mutating operation is one pass: the account is locked, the stored
// subscription loaded, the change classified (new subscription, upgrade,
// downgrade, cancellation, or no change), the provider driven through the
// phases that classification requires, and the result saved. A failing
// phase aborts the pass and leaves the stored subscription untouched, so a
// retry starts from clean state.
//
// # Quick Start
//
// Define plans, pick a provider, wire the orchestrator and service:
//
//	import "github.com/dmitrymomot/billingkit"
//
// Plan IDs double as the tier order, so assign them low to high:
//
//	plans := billingkit.StaticPlanSource{
//		{
//			ID:    1,
//			Name:  "Free",
//			Price: billingkit.Money{Amount: 0, Currency: "USD"},
//		},
//		{
//			ID:        2,
//			Name:      "Professional",
//			RemoteRef: "price_pro_monthly", // provider's price ID
//			Price:     billingkit.Money{Amount: 9900, Currency: "USD"},
//			TrialDays: 14,
//			Features:  []string{"ai", "sso"},
//			Limits:    map[string]int64{"projects": 50},
//		},
//	}
//
//	provider, err := billingkit.NewStripeProvider(billingkit.StripeConfig{
//		APIKey:        os.Getenv("STRIPE_API_KEY"),
//		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	flow, err := billingkit.NewOrchestrator(ctx, plans, provider,
//		billingkit.WithHooks(hooks),
//		billingkit.WithLogger(logger),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := billingkit.NewService(flow, store)
//
// The owning entity implements Billable on whatever pays the bills:
//
//	func (t *Team) BillingID() uuid.UUID              { return t.ID }
//	func (t *Team) BillingDescription() string        { return t.Name }
//	func (t *Team) BillingEmail() string              { return t.OwnerEmail }
//	func (t *Team) BillingMetadata() map[string]string { return nil }
//
// Optional capabilities (SeatProvider, CouponProvider, ReferralProvider,
// TrackingProvider) are discovered by type assertion and never required.
//
// # Plan Changes
//
// ChangePlan runs the full lifecycle for a plan switch:
//
//	pass, err := svc.ChangePlan(ctx, team, proPlanID,
//		billingkit.WithCardToken("pm_..."), // required for first subscribe
//	)
//	if err != nil {
//		// Provider state may have advanced; stored state did not.
//	}
//
// First-time subscribers get a billing customer and a remote subscription
// created in one pass. Existing subscribers get their remote subscription
// repointed to the new price. Preview the direction first:
//
//	diff, err := svc.DescribePlanChange(ctx, team.BillingID(), proPlanID)
//	// DifferenceUpgrade, DifferenceDowngrade, or DifferenceStartTrial
//
// and the concrete feature and limit consequences with ComparePlans.
//
// # Card Updates and Cancellation
//
//	// Replace the payment instrument, plan untouched:
//	pass, err := svc.UpdateCard(ctx, team, "pm_...")
//
//	// Drop the plan and cancel remotely. The billing customer survives
//	// for resubscription:
//	pass, err = svc.Cancel(ctx, team)
//
// A plan change and a card token in the same call favor the plan change:
// the token becomes the new customer's instrument when one is created and
// is ignored otherwise.
//
// # Hosted Checkout and Customer Portal
//
// Providers that cannot accept raw payment tokens (Paddle) onboard
// subscribers through a hosted page:
//
//	link, err := svc.CreateCheckoutLink(ctx, team, proPlanID,
//		billingkit.CheckoutOptions{
//			SuccessURL: "https://app.example.com/billing/success",
//			CancelURL:  "https://app.example.com/billing",
//		},
//	)
//	http.Redirect(w, r, link.URL, http.StatusSeeOther)
//
// Plans without a RemoteRef activate locally and redirect straight to the
// success URL. Self-service management uses the provider's portal:
//
//	portal, err := svc.GetCustomerPortalLink(ctx, team.BillingID())
//	// portal.URL, portal.CancelURL, portal.UpdatePaymentURL
//
// # Webhook Processing
//
// HandleWebhook verifies the provider signature, resolves the affected
// subscription, and applies the event under the same per-account lock as
// direct operations:
//
//	r := chi.NewRouter()
//	r.Mount("/", billingkit.Routes(svc))
//	// POST /webhooks/billing now receives Stripe or Paddle events.
//
// Payment success, charge failure, dispute, and remote cancellation events
// update the stored status through a transition table; impossible jumps
// are logged and skipped. Events for unknown entities are acknowledged so
// the provider stops redelivering them, and redeliveries of an already
// applied event can be absorbed without re-running hooks:
//
//	svc := billingkit.NewService(flow, store,
//		billingkit.WithWebhookReplayCache(4096),
//	)
//
// # Hooks
//
// Hooks observe and extend each phase of a pass:
//
//	type Hooks interface {
//		PrepareForPlanChange(ctx context.Context, sub *Subscription) error
//		PrepareForNewSubscription(ctx context.Context, sub *Subscription) error
//		PrepareForUpgrade(ctx context.Context, sub *Subscription) error
//		PrepareForDowngrade(ctx context.Context, sub *Subscription) error
//		// ... finalize counterparts, payment and dispute callbacks
//	}
//
// Prepare hooks run before provider calls and can veto the pass by
// returning an error; finalize hooks run after the provider succeeded.
// NoopHooks is a safe embedding base when only a few callbacks matter.
//
// # Concurrency
//
// Passes for one account never interleave. The default locker is an
// in-process keyed mutex; multi-instance deployments install the Redis
// locker:
//
//	svc := billingkit.NewService(flow, store,
//		billingkit.WithLocker(lock.NewRedisLocker(redisClient)),
//	)
//
// # Error Handling
//
//	switch {
//	case errors.Is(err, billingkit.ErrMissingCardToken):
//		// First subscribe without a payment token.
//	case errors.Is(err, billingkit.ErrPlanNotFound):
//		// Unknown plan ID.
//	case errors.Is(err, billingkit.ErrSubscriptionNotFound):
//		// Nothing stored for this account yet.
//	}
//
//	var decline *billingkit.DeclineError
//	if errors.As(err, &decline) {
//		// Card rejected by the provider; decline.Code and decline.Reason
//		// say why. Show the customer a fix-your-card prompt.
//	}
//
// # Storage Implementation
//
// Implement SubscriptionStore for your database, or start with
// NewMemoryStore. Persisted subscriptions never carry the per-pass card
// token or coupon code; those live only for the duration of a pass.
//
//	type PgStore struct{ pool *pgxpool.Pool }
//
//	func (s *PgStore) Get(ctx context.Context, accountID uuid.UUID) (*billingkit.Subscription, error) {
//		// Return billingkit.ErrSubscriptionNotFound when absent.
//	}
//
// Ready-made PostgreSQL and MongoDB stores live in pkg/pgstore and
// pkg/mongostore.
package billingkit
