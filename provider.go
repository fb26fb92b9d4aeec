package billingkit

import (
	"context"
	"time"
)

// BillingProvider is the sole channel to the outside billing system. Every
// method is a blocking remote call that may fail; the orchestrator issues
// them strictly sequentially within one pass and never assumes transactional
// atomicity across more than one call.
//
// Implementations own the retry/timeout policy: bounded backoff for the
// idempotent customer read, no automatic retry for mutating calls. Adapter
// timeouts surface as ordinary errors.
type BillingProvider interface {
	// GetCustomer retrieves a remote customer.
	// Returns an error wrapping ErrCustomerNotFound when it does not exist.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// CreateCustomer creates a remote customer with the payment instrument
	// attached. A refused instrument is reported as a *DeclineError.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// UpdateCustomerCard replaces the customer's payment instrument and
	// returns a summary of the new one.
	UpdateCustomerCard(ctx context.Context, customerID, cardToken string) (*Card, error)

	// CreateSubscription creates the remote recurring charge.
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*RemoteSubscription, error)

	// UpdateSubscription moves an existing remote subscription to another
	// plan without proration: the new price takes effect without a prorated
	// adjustment.
	UpdateSubscription(ctx context.Context, subscriptionID, remotePlanRef string, quantity int) (*RemoteSubscription, error)

	// CancelSubscription removes the remote subscription record. The remote
	// customer is kept.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// CreateCustomerParams carries the data for a new remote customer, derived
// from the owning subject.
type CreateCustomerParams struct {
	Description string            // customer name or identifier
	Email       string            // billing contact
	CardToken   string            // payment method/token id from the provider's client-side SDK
	CouponCode  string            // optional discount applied at creation
	Metadata    map[string]string // includes account, referral and tracking ids
}

// CreateSubscriptionParams carries the data for a new remote subscription.
type CreateSubscriptionParams struct {
	CustomerID string
	PlanRef    string // provider's plan/price identifier
	Quantity   int
	TrialEnd   *time.Time // optional trial window end
	Metadata   map[string]string
}

// Customer is the provider's customer record as the core needs it.
type Customer struct {
	ID          string
	Email       string
	Description string
	DefaultCard *Card // nil when no instrument is on file
}

// Card summarizes a payment instrument.
type Card struct {
	Last4    string
	Brand    string
	ExpMonth int64
	ExpYear  int64
}

// RemoteSubscription is the provider's subscription record as the core
// needs it.
type RemoteSubscription struct {
	ID       string
	PlanRef  string
	Status   string // provider's raw status string
	TrialEnd *time.Time
}

// Optional provider capabilities, consulted by type assertion. A provider
// that lacks one simply doesn't offer the corresponding service operation.

// WebhookParser validates and parses incoming webhook data. Implementations
// must verify the provider signature to prevent webhook spoofing before
// returning a normalized event.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutProvider creates hosted checkout sessions for providers that
// cannot accept raw payment tokens (Paddle onboards instruments only
// through its hosted checkout).
type CheckoutProvider interface {
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
}

// PortalProvider returns links to the provider's customer portal where
// customers self-manage payment methods and cancellation.
type PortalProvider interface {
	CustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // provider's price/plan identifier
	CustomerID string // internal account ID, travels in session metadata
	Email      string // optional billing email
	SuccessURL string // redirect after successful payment
	CancelURL  string // redirect if the customer backs out
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    // hosted checkout URL
	SessionID string    // provider's session identifier
	ExpiresAt time.Time // link expiration
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL              string    // pre-authenticated customer portal URL
	CancelURL        string    // direct link to the cancellation flow, when offered
	UpdatePaymentURL string    // direct link to the payment method flow, when offered
	ExpiresAt        time.Time // link expiration (usually 24 hours)
}

// WebhookEvent is a normalized webhook event from the billing provider.
type WebhookEvent struct {
	Type           EventType      // normalized event type
	EventID        string         // provider's unique delivery ID, used to suppress replays
	ProviderEvent  string         // original provider event name
	SubscriptionID string         // provider's subscription ID, when present
	CustomerID     string         // provider's customer ID, when present
	Status         string         // provider's subscription status, when present
	Amount         *Money         // charged amount for payment events
	Raw            map[string]any // full webhook data
}

// EventType is the normalized billing event type. Each provider
// implementation maps its specific events onto these.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventChargeFailed     EventType = "charge_failed"
	EventChargeDisputed   EventType = "charge_disputed"

	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionUpdated   EventType = "subscription_updated"
)
