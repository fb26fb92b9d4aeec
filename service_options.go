package billingkit

import (
	"time"

	"github.com/dmitrymomot/billingkit/pkg/cache"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// changeRequest collects the transient inputs of one plan change.
type changeRequest struct {
	cardToken  string
	couponCode string
}

// ChangeOption supplies transient inputs to ChangePlan. They live on the
// entity only for the duration of the pass and are cleared once it
// finalizes.
type ChangeOption func(*changeRequest)

// WithCardToken supplies the provider payment token collected from the
// payment form. Required when the account has no billing customer yet; a
// plan change for an existing customer ignores it.
func WithCardToken(token string) ChangeOption {
	return func(r *changeRequest) {
		r.cardToken = token
	}
}

// WithCouponCode applies a coupon to the billing customer on first
// subscribe. An explicit code takes precedence over the owner's
// CouponProvider capability.
func WithCouponCode(code string) ChangeOption {
	return func(r *changeRequest) {
		r.couponCode = code
	}
}

// WithLocker installs the per-account locker. The default in-process keyed
// mutex only serializes within one instance; deployments running several
// instances should pass a distributed locker such as lock.NewRedisLocker.
func WithLocker(locker Locker) ServiceOption {
	return func(s *service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithWebhookReplayCache remembers the IDs of the most recent capacity
// webhook events and acknowledges redeliveries without firing hooks or
// touching the entity again. Only events that were fully applied are
// remembered, so a delivery that failed with an error is reprocessed when
// the provider retries it. The cache is in-process; with several
// instances each one suppresses independently.
func WithWebhookReplayCache(capacity int) ServiceOption {
	return func(s *service) {
		if capacity > 0 {
			s.seenEvents = cache.NewLRU[string, time.Time](capacity)
		}
	}
}
