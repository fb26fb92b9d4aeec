package billingkit

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the local mirror of the billing state.
// The zero value means the account has never been subscribed.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// Subscription is the entity under management. Each account has exactly one
// subscription record, keyed by AccountID.
//
// Field groups:
//   - plan state: PlanID, PrevPlanID, CurrentPrice
//   - provider state: ProviderCustomerID, ProviderSubscriptionID, CardLast4
//   - pass inputs: CardToken, CouponCode (write-once, read-once, cleared
//     after any abort-free pass, never persisted)
type Subscription struct {
	AccountID uuid.UUID // Primary key - one subscription per account

	PlanID     *int64 // Desired plan; nil means no active plan
	PrevPlanID *int64 // Plan before the in-flight change; only meaningful during one pass

	CurrentPrice *Money // Price snapshot taken when a plan becomes active; nil iff PlanID is nil

	ProviderCustomerID     string // Remote billing customer; once set, never cleared
	ProviderSubscriptionID string // Remote subscription record; empty when none exists
	CardLast4              string // Last four digits of the instrument on file

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time

	// Transient pass inputs, never persisted.
	CardToken  string
	CouponCode string
}

// HasPlan returns true when a plan is currently selected.
func (s *Subscription) HasPlan() bool {
	return s.PlanID != nil
}

// HasRemoteCustomer returns true once a remote billing customer exists.
func (s *Subscription) HasRemoteCustomer() bool {
	return s.ProviderCustomerID != ""
}

// HasRemoteSubscription returns true while a remote subscription record exists.
func (s *Subscription) HasRemoteSubscription() bool {
	return s.ProviderSubscriptionID != ""
}

// IsTrialing returns true if the subscription is in trial status.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

// IsActive returns true if the subscription is active (paid).
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsPastDue returns true if the latest charge failed.
func (s *Subscription) IsPastDue() bool {
	return s.Status == StatusPastDue
}

// IsCancelled returns true if the subscription is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// PlanDifference is a presentation-only classification of a candidate plan
// relative to the current one.
type PlanDifference string

const (
	DifferenceUpgrade    PlanDifference = "upgrade"
	DifferenceDowngrade  PlanDifference = "downgrade"
	DifferenceStartTrial PlanDifference = "start_trial"
)

// DescribeDifference classifies a candidate plan against the current plan for
// display purposes, independent of the orchestrator: "start_trial" when the
// account was never subscribed, "upgrade" when there is no active plan (a
// resubscription) or the candidate is higher-ordered, "downgrade" otherwise.
// Pure and stateless; it never touches the provider.
func (s *Subscription) DescribeDifference(candidate Plan) PlanDifference {
	if s == nil || s.PlanID == nil {
		if s == nil || s.CreatedAt.IsZero() {
			return DifferenceStartTrial
		}
		return DifferenceUpgrade
	}
	if candidate.ID > *s.PlanID {
		return DifferenceUpgrade
	}
	return DifferenceDowngrade
}

// clone returns a deep copy so stores and callers never alias pass-mutable state.
func (s *Subscription) clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	if s.PlanID != nil {
		v := *s.PlanID
		out.PlanID = &v
	}
	if s.PrevPlanID != nil {
		v := *s.PrevPlanID
		out.PrevPlanID = &v
	}
	if s.CurrentPrice != nil {
		v := *s.CurrentPrice
		out.CurrentPrice = &v
	}
	return &out
}
