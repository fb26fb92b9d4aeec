package billingkit

import (
	"time"

	"github.com/google/uuid"
)

// Billable describes the subject that owns a subscription. The embedding
// application implements it on whatever entity pays the bills (a user, a
// team, a tenant).
type Billable interface {
	// BillingID is the local account identity the subscription is keyed by.
	BillingID() uuid.UUID

	// BillingDescription names the customer on the provider side.
	BillingDescription() string

	// BillingEmail is the billing contact address.
	BillingEmail() string

	// BillingMetadata is attached to the remote customer record.
	// May return nil.
	BillingMetadata() map[string]string
}

// Optional capabilities of the owning subject. Each is consulted by type
// assertion at the point of use; absence is never an error.

// SeatProvider exposes the number of billable seats. Without it, quantity
// defaults to one.
type SeatProvider interface {
	SeatCount() int
}

// ReferralProvider exposes a referral or affiliate identifier that travels
// in the remote customer's metadata.
type ReferralProvider interface {
	ReferralID() string
}

// TrackingProvider exposes a third-party tracking identifier that travels
// in the remote customer's metadata.
type TrackingProvider interface {
	TrackingID() string
}

// CouponProvider exposes a coupon attached to the owning subject, applied
// at new-customer creation time.
type CouponProvider interface {
	BillingCoupon() *Coupon
}

// Coupon is a discount applied when the remote customer is created.
// FreeTrial coupons convert into a trial window on the new subscription.
type Coupon struct {
	Code      string
	FreeTrial bool
	TrialEnd  time.Time
}

// seatCount resolves the billable quantity for an owner, defaulting to one.
func seatCount(owner Billable) int {
	if sp, ok := owner.(SeatProvider); ok {
		if n := sp.SeatCount(); n > 0 {
			return n
		}
	}
	return 1
}

// customerMetadata merges the owner's metadata with the optional referral
// and tracking identifiers.
func customerMetadata(owner Billable) map[string]string {
	meta := make(map[string]string)
	for k, v := range owner.BillingMetadata() {
		meta[k] = v
	}
	meta["account_id"] = owner.BillingID().String()

	if rp, ok := owner.(ReferralProvider); ok {
		if id := rp.ReferralID(); id != "" {
			meta["referral_id"] = id
		}
	}
	if tp, ok := owner.(TrackingProvider); ok {
		if id := tp.TrackingID(); id != "" {
			meta["tracking_id"] = id
		}
	}
	return meta
}

// ownerCoupon returns the owner's coupon if the capability is present.
func ownerCoupon(owner Billable) *Coupon {
	if cp, ok := owner.(CouponProvider); ok {
		return cp.BillingCoupon()
	}
	return nil
}
