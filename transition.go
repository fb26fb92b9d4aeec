package billingkit

// Transition represents one classified kind of plan change.
type Transition string

const (
	// TransitionUnchanged means the desired plan equals the previous plan.
	// No hooks fire and no provider calls are made.
	TransitionUnchanged Transition = "unchanged"

	// TransitionNewSubscription means a plan was selected where none was
	// active before. It is treated as an upgrade for hook purposes: both
	// the new-subscription and the upgrade hook pairs fire.
	TransitionNewSubscription Transition = "new_subscription"

	// TransitionUpgrade means the desired plan is higher-ordered than the
	// previous one.
	TransitionUpgrade Transition = "upgrade"

	// TransitionDowngrade means the desired plan is lower-ordered than the
	// previous one.
	TransitionDowngrade Transition = "downgrade"

	// TransitionCancellation means the previous plan was dropped without a
	// replacement. The remote subscription is removed; the remote customer
	// is kept.
	TransitionCancellation Transition = "cancellation"
)

// IsPlanChange returns true for every transition that requires the
// plan-change hook bracket and provider sequencing.
func (t Transition) IsPlanChange() bool {
	return t != TransitionUnchanged
}

// Classify determines the transition between two plan references.
//
// Plan identifiers are compared numerically: a higher id is a higher tier.
// Catalogs must therefore assign ids in tier order; equal-tier plans with
// distinct ids are not supported and classify as whatever the numeric
// comparison yields. A nil reference means no plan.
func Classify(oldID, newID *int64) Transition {
	switch {
	case oldID == nil && newID == nil:
		return TransitionUnchanged
	case oldID == nil:
		return TransitionNewSubscription
	case newID == nil:
		return TransitionCancellation
	case *oldID == *newID:
		return TransitionUnchanged
	case *oldID < *newID:
		return TransitionUpgrade
	default:
		return TransitionDowngrade
	}
}
