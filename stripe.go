package billingkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	// APIKey is the secret key (sk_live_... or sk_test_...).
	APIKey string `env:"STRIPE_API_KEY,required"`
	// WebhookSecret signs incoming webhook payloads (whsec_...). Required
	// only when webhooks are handled.
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProvider implements BillingProvider plus the WebhookParser,
// CheckoutProvider, and PortalProvider capabilities on top of the Stripe
// API. Card tokens are PaymentMethod identifiers (pm_...) produced by
// Stripe.js or the mobile SDKs.
type StripeProvider struct {
	client        *stripe.Client
	webhookSecret string
}

var (
	_ BillingProvider  = (*StripeProvider)(nil)
	_ WebhookParser    = (*StripeProvider)(nil)
	_ CheckoutProvider = (*StripeProvider)(nil)
	_ PortalProvider   = (*StripeProvider)(nil)
)

// NewStripeProvider creates a Stripe-backed billing provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &StripeProvider{
		client:        stripe.NewClient(cfg.APIKey, nil),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// GetCustomer implements BillingProvider. Transient API failures are
// retried with exponential backoff since the read is idempotent.
func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var cus *stripe.Customer

	operation := func() error {
		c, err := p.client.V1Customers.Retrieve(ctx, customerID, nil)
		if err != nil {
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				if stripeErr.Code == stripe.ErrorCodeResourceMissing {
					return backoff.Permanent(fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID))
				}
				if !isRetriableStripeStatus(stripeErr.HTTPStatusCode) {
					return backoff.Permanent(err)
				}
			}
			return err
		}
		cus = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	if cus.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}

	out := &Customer{
		ID:          cus.ID,
		Email:       cus.Email,
		Description: cus.Description,
	}
	if cus.InvoiceSettings != nil && cus.InvoiceSettings.DefaultPaymentMethod != nil {
		if card, err := p.paymentMethodCard(ctx, cus.InvoiceSettings.DefaultPaymentMethod.ID); err == nil {
			out.DefaultCard = card
		}
	}
	return out, nil
}

// CreateCustomer implements BillingProvider. The card token is attached as
// the default payment method; a refused instrument becomes a *DeclineError.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	create := &stripe.CustomerCreateParams{
		Description: stripe.String(params.Description),
		Email:       stripe.String(params.Email),
		Metadata:    params.Metadata,
	}
	if params.CardToken != "" {
		create.PaymentMethod = stripe.String(params.CardToken)
		create.InvoiceSettings = &stripe.CustomerCreateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(params.CardToken),
		}
	}
	if params.CouponCode != "" {
		create.Coupon = stripe.String(params.CouponCode)
	}

	cus, err := p.client.V1Customers.Create(ctx, create)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	out := &Customer{
		ID:          cus.ID,
		Email:       cus.Email,
		Description: cus.Description,
	}
	if params.CardToken != "" {
		if card, cardErr := p.paymentMethodCard(ctx, params.CardToken); cardErr == nil {
			out.DefaultCard = card
		}
	}
	return out, nil
}

// UpdateCustomerCard implements BillingProvider: attach the new payment
// method, make it the default for invoices, and report its card summary.
func (p *StripeProvider) UpdateCustomerCard(ctx context.Context, customerID, cardToken string) (*Card, error) {
	pm, err := p.client.V1PaymentMethods.Attach(ctx, cardToken, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return nil, wrapStripeError(err)
	}

	_, err = p.client.V1Customers.Update(ctx, customerID, &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(cardToken),
		},
	})
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return cardFromPaymentMethod(pm), nil
}

// CreateSubscription implements BillingProvider.
func (p *StripeProvider) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*RemoteSubscription, error) {
	quantity := params.Quantity
	if quantity < 1 {
		quantity = 1
	}

	create := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{
				Price:    stripe.String(params.PlanRef),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		Metadata: params.Metadata,
	}
	if params.TrialEnd != nil {
		create.TrialEnd = stripe.Int64(params.TrialEnd.Unix())
	}

	sub, err := p.client.V1Subscriptions.Create(ctx, create)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return remoteFromStripeSubscription(sub), nil
}

// UpdateSubscription implements BillingProvider. The single subscription
// item is swapped to the new price without proration.
func (p *StripeProvider) UpdateSubscription(ctx context.Context, subscriptionID, remotePlanRef string, quantity int) (*RemoteSubscription, error) {
	current, err := p.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe subscription %s has no items", subscriptionID)
	}

	if quantity < 1 {
		quantity = 1
	}
	update := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:       stripe.String(current.Items.Data[0].ID),
				Price:    stripe.String(remotePlanRef),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		ProrationBehavior: stripe.String("none"),
	}

	sub, err := p.client.V1Subscriptions.Update(ctx, subscriptionID, update)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return remoteFromStripeSubscription(sub), nil
}

// CancelSubscription implements BillingProvider. The subscription ends
// immediately rather than at period end.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if _, err := p.client.V1Subscriptions.Cancel(ctx, subscriptionID, nil); err != nil {
		return wrapStripeError(err)
	}
	return nil
}

// CreateCheckoutLink implements CheckoutProvider with a subscription-mode
// Checkout Session. The internal account ID travels as the client reference
// so the webhook side can correlate the session.
func (p *StripeProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String("subscription"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.CustomerID),
		Metadata:          map[string]string{"account_id": req.CustomerID},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := p.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       sess.URL,
		SessionID: sess.ID,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// CustomerPortalLink implements PortalProvider with a Billing Portal
// session. Stripe's portal covers cancellation and payment methods from one
// URL, so the direct flow links stay empty.
func (p *StripeProvider) CustomerPortalLink(ctx context.Context, customerID, _ string) (*PortalLink, error) {
	sess, err := p.client.V1BillingPortalSessions.Create(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if sess.URL == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalLink{
		URL:       sess.URL,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// ParseWebhook implements WebhookParser. The signature is verified before
// any payload field is trusted. Event types outside the tracked set return
// (nil, nil) so the caller can acknowledge them.
func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}

	var raw map[string]any
	_ = json.Unmarshal(event.Data.Raw, &raw)

	switch event.Type {
	case "invoice.payment_succeeded", "invoice.payment_failed":
		inv, err := decodeStripeInvoice(event.Data.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode invoice payload: %w", err)
		}
		out := &WebhookEvent{
			EventID:        event.ID,
			ProviderEvent:  string(event.Type),
			SubscriptionID: inv.subscriptionID(),
			CustomerID:     inv.Customer,
			Raw:            raw,
		}
		if event.Type == "invoice.payment_succeeded" {
			out.Type = EventPaymentSucceeded
			out.Amount = &Money{Amount: inv.AmountPaid, Currency: strings.ToUpper(inv.Currency)}
		} else {
			out.Type = EventChargeFailed
		}
		return out, nil

	case "charge.dispute.created":
		var dispute struct {
			Charge string `json:"charge"`
		}
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, fmt.Errorf("decode dispute payload: %w", err)
		}
		// The dispute carries only the charge reference; the charge is
		// fetched to resolve the customer.
		customerID, err := p.chargeCustomerID(ctx, dispute.Charge)
		if err != nil {
			return nil, fmt.Errorf("resolve disputed charge %s: %w", dispute.Charge, err)
		}
		return &WebhookEvent{
			Type:          EventChargeDisputed,
			EventID:       event.ID,
			ProviderEvent: string(event.Type),
			CustomerID:    customerID,
			Raw:           raw,
		}, nil

	case "customer.subscription.deleted":
		sub, err := decodeStripeEventSubscription(event.Data.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
		return &WebhookEvent{
			Type:           EventSubscriptionCancelled,
			EventID:        event.ID,
			ProviderEvent:  string(event.Type),
			SubscriptionID: sub.ID,
			CustomerID:     sub.Customer,
			Status:         sub.Status,
			Raw:            raw,
		}, nil

	case "customer.subscription.updated":
		sub, err := decodeStripeEventSubscription(event.Data.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
		return &WebhookEvent{
			Type:           EventSubscriptionUpdated,
			EventID:        event.ID,
			ProviderEvent:  string(event.Type),
			SubscriptionID: sub.ID,
			CustomerID:     sub.Customer,
			Status:         sub.Status,
			Raw:            raw,
		}, nil
	}

	// Verified but untracked; the caller acknowledges it.
	return nil, nil
}

// paymentMethodCard retrieves a payment method and summarizes its card.
func (p *StripeProvider) paymentMethodCard(ctx context.Context, paymentMethodID string) (*Card, error) {
	pm, err := p.client.V1PaymentMethods.Retrieve(ctx, paymentMethodID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return cardFromPaymentMethod(pm), nil
}

// chargeCustomerID resolves the customer a charge was made against.
func (p *StripeProvider) chargeCustomerID(ctx context.Context, chargeID string) (string, error) {
	if chargeID == "" {
		return "", errors.New("dispute payload has no charge reference")
	}
	charge, err := p.client.V1Charges.Retrieve(ctx, chargeID, nil)
	if err != nil {
		return "", wrapStripeError(err)
	}
	if charge.Customer == nil {
		return "", nil
	}
	return charge.Customer.ID, nil
}

func cardFromPaymentMethod(pm *stripe.PaymentMethod) *Card {
	if pm == nil || pm.Card == nil {
		return nil
	}
	return &Card{
		Last4:    pm.Card.Last4,
		Brand:    string(pm.Card.Brand),
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
	}
}

func remoteFromStripeSubscription(sub *stripe.Subscription) *RemoteSubscription {
	out := &RemoteSubscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PlanRef = sub.Items.Data[0].Price.ID
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	return out
}

// stripeInvoice is the slice of the invoice payload the webhook path needs.
// The subscription reference moved under parent.subscription_details in
// newer API versions, so both locations are read.
type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
}

func (inv *stripeInvoice) subscriptionID() string {
	if inv.Subscription != "" {
		return inv.Subscription
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return inv.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func decodeStripeInvoice(raw json.RawMessage) (*stripeInvoice, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

type stripeEventSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

func decodeStripeEventSubscription(raw json.RawMessage) (*stripeEventSubscription, error) {
	var sub stripeEventSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// wrapStripeError converts card failures into *DeclineError and leaves
// everything else untouched.
func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Code == stripe.ErrorCodeCardDeclined {
		return &DeclineError{
			Code:    string(stripeErr.Code),
			Reason:  string(stripeErr.DeclineCode),
			Message: stripeErr.Msg,
		}
	}
	return err
}

// isRetriableStripeStatus reports whether the HTTP status suggests a
// transient failure worth retrying.
func isRetriableStripeStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
