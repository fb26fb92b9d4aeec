package billingkit

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrCustomerNotFound          = errors.New("billing customer not found")

	ErrMissingCardToken = errors.New("payment token is required")
	ErrCardDeclined     = errors.New("card was declined by the billing provider")

	ErrProviderUnsupported = errors.New("operation not supported by the billing provider")

	// Provider configuration errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrMissingProviderCustomerID  = errors.New("provider customer ID not available")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL                = errors.New("no portal URL returned from provider")
)

// DeclineError is returned by provider adapters when the payment instrument
// was refused. It unwraps to ErrCardDeclined so callers can classify with
// errors.Is. The orchestrator recovers it into a user-visible validation
// message during new-customer creation; everywhere else it propagates.
type DeclineError struct {
	Code    string // provider's error code (e.g. card_declined)
	Reason  string // provider's decline reason (e.g. insufficient_funds)
	Message string // user-safe message supplied by the provider
}

// Error implements the error interface.
func (e *DeclineError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("card declined (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("card declined: %s", e.Message)
}

// Unwrap lets errors.Is(err, ErrCardDeclined) match.
func (e *DeclineError) Unwrap() error {
	return ErrCardDeclined
}

// UserMessage returns the message safe to show to the cardholder.
func (e *DeclineError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "Your card was declined. Please try a different payment method."
}
