package billingkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v3"
)

// PaddleConfig holds Paddle credentials.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider adapts Paddle Billing. Paddle never exposes raw payment
// tokens to the server: instruments are collected on its hosted checkout
// and changed through its customer portal. The provider therefore serves
// the CheckoutProvider, PortalProvider, and WebhookParser capabilities and
// rejects the direct customer and subscription mutations with
// ErrProviderUnsupported.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

var (
	_ BillingProvider  = (*PaddleProvider)(nil)
	_ WebhookParser    = (*PaddleProvider)(nil)
	_ CheckoutProvider = (*PaddleProvider)(nil)
	_ PortalProvider   = (*PaddleProvider)(nil)
)

// NewPaddleProvider creates a Paddle-backed billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// GetCustomer implements BillingProvider.
func (p *PaddleProvider) GetCustomer(_ context.Context, _ string) (*Customer, error) {
	return nil, fmt.Errorf("%w: paddle manages customers through hosted checkout", ErrProviderUnsupported)
}

// CreateCustomer implements BillingProvider. Paddle cannot accept a payment
// token server-side; route new subscribers through CreateCheckoutLink.
func (p *PaddleProvider) CreateCustomer(_ context.Context, _ CreateCustomerParams) (*Customer, error) {
	return nil, fmt.Errorf("%w: paddle collects payment instruments on hosted checkout", ErrProviderUnsupported)
}

// UpdateCustomerCard implements BillingProvider. Payment methods change in
// Paddle's customer portal; see CustomerPortalLink.
func (p *PaddleProvider) UpdateCustomerCard(_ context.Context, _, _ string) (*Card, error) {
	return nil, fmt.Errorf("%w: paddle changes payment methods in the customer portal", ErrProviderUnsupported)
}

// CreateSubscription implements BillingProvider.
func (p *PaddleProvider) CreateSubscription(_ context.Context, _ CreateSubscriptionParams) (*RemoteSubscription, error) {
	return nil, fmt.Errorf("%w: paddle subscriptions start from hosted checkout", ErrProviderUnsupported)
}

// UpdateSubscription implements BillingProvider.
func (p *PaddleProvider) UpdateSubscription(_ context.Context, _, _ string, _ int) (*RemoteSubscription, error) {
	return nil, fmt.Errorf("%w: paddle plan changes run through the customer portal", ErrProviderUnsupported)
}

// CancelSubscription implements BillingProvider.
func (p *PaddleProvider) CancelSubscription(_ context.Context, _ string) error {
	return fmt.Errorf("%w: paddle cancellations run through the customer portal", ErrProviderUnsupported)
}

// CreateCheckoutLink implements CheckoutProvider with a Paddle transaction
// whose checkout URL hosts the payment page. The internal account ID
// travels in custom data so webhooks can correlate the resulting
// subscription.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, fmt.Errorf("%w: price reference is empty", ErrInvalidPlanConfiguration)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"account_id": req.CustomerID,
		},
	}
	if req.Email != "" {
		transactionReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// CustomerPortalLink implements PortalProvider. Paddle's portal session
// exposes per-subscription deep links for cancellation and payment method
// changes alongside the general overview URL.
func (p *PaddleProvider) CustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error) {
	if customerID == "" {
		return nil, ErrMissingProviderCustomerID
	}

	portalReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	}
	if subscriptionID != "" {
		portalReq.SubscriptionIDs = []string{subscriptionID}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, portalReq)
	if err != nil {
		return nil, fmt.Errorf("create paddle portal session: %w", err)
	}

	link := &PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID != subscriptionID {
			continue
		}
		link.CancelURL = subURL.CancelSubscription
		link.UpdatePaymentURL = subURL.UpdateSubscriptionPaymentMethod
		break
	}

	if link.URL == "" {
		return nil, ErrNoPortalURL
	}
	return link, nil
}

// ParseWebhook implements WebhookParser. The Paddle-Signature header value
// is verified via the SDK before the payload is trusted. Untracked event
// types return (nil, nil).
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}

	eventType, tracked := mapPaddleEventType(paddleEvent.EventType, paddleEvent.Data)
	if !tracked {
		return nil, nil
	}

	event := &WebhookEvent{
		Type:          eventType,
		EventID:       paddleEvent.EventID,
		ProviderEvent: paddleEvent.EventType,
		Raw:           paddleEvent.Data,
	}
	if id, ok := paddleEvent.Data["customer_id"].(string); ok {
		event.CustomerID = id
	}
	if status, ok := paddleEvent.Data["status"].(string); ok {
		event.Status = status
	}

	switch {
	case strings.HasPrefix(paddleEvent.EventType, "subscription."):
		if id, ok := paddleEvent.Data["id"].(string); ok {
			event.SubscriptionID = id
		}
	case strings.HasPrefix(paddleEvent.EventType, "transaction."):
		if id, ok := paddleEvent.Data["subscription_id"].(string); ok {
			event.SubscriptionID = id
		}
		event.Amount = paddleTransactionAmount(paddleEvent.Data)
	}

	return event, nil
}

// ParseWebhookRequest verifies and parses a webhook straight from the HTTP
// request, for embedders wiring Paddle into their own router.
func (p *PaddleProvider) ParseWebhookRequest(req *http.Request) (*WebhookEvent, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	return p.ParseWebhook(req.Context(), body, req.Header.Get("Paddle-Signature"))
}

// mapPaddleEventType maps Paddle event names onto the normalized set. The
// second return is false for events the module does not track. Chargebacks
// arrive as adjustments with a chargeback action.
func mapPaddleEventType(paddleEvent string, data map[string]any) (EventType, bool) {
	switch paddleEvent {
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded, true
	case "transaction.payment_failed":
		return EventChargeFailed, true
	case "subscription.canceled":
		return EventSubscriptionCancelled, true
	case "subscription.updated":
		return EventSubscriptionUpdated, true
	case "adjustment.created":
		if action, ok := data["action"].(string); ok && action == "chargeback" {
			return EventChargeDisputed, true
		}
		return "", false
	default:
		return "", false
	}
}

// paddleTransactionAmount extracts the charged total from a transaction
// payload. Paddle reports totals as strings in the smallest currency unit.
func paddleTransactionAmount(data map[string]any) *Money {
	details, ok := data["details"].(map[string]any)
	if !ok {
		return nil
	}
	totals, ok := details["totals"].(map[string]any)
	if !ok {
		return nil
	}
	total, ok := totals["total"].(string)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return nil
	}

	currency, _ := totals["currency_code"].(string)
	if currency == "" {
		currency, _ = data["currency_code"].(string)
	}
	return &Money{Amount: value, Currency: strings.ToUpper(currency)}
}
