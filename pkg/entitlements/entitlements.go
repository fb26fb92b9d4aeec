package entitlements

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit"
)

// Resource names a countable entity constrained by plan limits. Values must
// match the keys of Plan.Limits in the catalog.
type Resource string

// CounterFunc reports the account's current usage of one resource. It is
// called on every check, so keep it fast: aggregate in the repository or
// put a cache in front.
type CounterFunc func(ctx context.Context, accountID uuid.UUID) (int64, error)

// Usage pairs current consumption with the plan cap for one resource.
// Limit is billingkit.Unlimited (-1) when the plan sets no cap.
type Usage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// SubscriptionSource is the read half of billingkit.SubscriptionStore the
// service needs to resolve an account's active plan.
type SubscriptionSource interface {
	Get(ctx context.Context, accountID uuid.UUID) (*billingkit.Subscription, error)
}

// Service answers what an account may do under its current plan.
type Service interface {
	// CanCreate reports whether the account may create one more unit of the
	// resource. It returns nil when allowed, ErrLimitExceeded when the plan
	// cap is reached, and a more specific error when the check itself cannot
	// be performed.
	CanCreate(ctx context.Context, accountID uuid.UUID, res Resource) error

	// Usage returns current consumption and the plan cap for one resource.
	Usage(ctx context.Context, accountID uuid.UUID, res Resource) (Usage, error)

	// AllUsage returns usage for every resource the plan limits. Resources
	// without a registered counter report Used 0.
	AllUsage(ctx context.Context, accountID uuid.UUID) (map[Resource]Usage, error)

	// UsagePercent returns consumption as 0-100, capped at 100. Unlimited
	// resources return -1. Any resolution failure reports 0.
	UsagePercent(ctx context.Context, accountID uuid.UUID, res Resource) int

	// HasFeature reports whether the account's plan grants the named feature
	// flag. Accounts without a resolvable plan have no features.
	HasFeature(ctx context.Context, accountID uuid.UUID, feature string) bool

	// CanDowngrade reports whether the account's current usage fits inside
	// the target plan's caps. Call it before Orchestrator.ChangePlan when
	// moving to a cheaper tier.
	CanDowngrade(ctx context.Context, accountID uuid.UUID, targetPlanID int64) error
}

type service struct {
	plans    map[int64]billingkit.Plan
	subs     SubscriptionSource
	counters map[Resource]CounterFunc
}

// Option configures the entitlements service.
type Option func(*service)

// WithCounter registers the usage counter for one resource. Panics if fn
// is nil.
func WithCounter(res Resource, fn CounterFunc) Option {
	return func(s *service) {
		if fn == nil {
			panic(fmt.Sprintf("entitlements: counter for resource %q is required", res))
		}
		s.counters[res] = fn
	}
}

// NewService loads the plan catalog once and serves entitlement checks
// against that snapshot. Rebuild the service after a catalog change.
// Panics if src or subs is nil.
func NewService(ctx context.Context, src billingkit.PlanSource, subs SubscriptionSource, opts ...Option) (Service, error) {
	if src == nil {
		panic("entitlements: plan source is required")
	}
	if subs == nil {
		panic("entitlements: subscription source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	s := &service{
		plans:    plans,
		subs:     subs,
		counters: make(map[Resource]CounterFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// currentPlan resolves the account's plan through its subscription record.
func (s *service) currentPlan(ctx context.Context, accountID uuid.UUID) (billingkit.Plan, error) {
	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, billingkit.ErrSubscriptionNotFound) {
			return billingkit.Plan{}, ErrNoActivePlan
		}
		return billingkit.Plan{}, err
	}
	if sub.PlanID == nil {
		return billingkit.Plan{}, ErrNoActivePlan
	}
	plan, ok := s.plans[*sub.PlanID]
	if !ok {
		return billingkit.Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (s *service) count(ctx context.Context, accountID uuid.UUID, res Resource) (int64, error) {
	counter, ok := s.counters[res]
	if !ok {
		return 0, ErrNoCounterRegistered
	}
	used, err := counter(ctx, accountID)
	if err != nil {
		return 0, errors.Join(ErrFailedToCountUsage, err)
	}
	return used, nil
}

func (s *service) CanCreate(ctx context.Context, accountID uuid.UUID, res Resource) error {
	plan, err := s.currentPlan(ctx, accountID)
	if err != nil {
		return err
	}

	limit, ok := plan.LimitFor(string(res))
	if !ok {
		return ErrResourceNotInPlan
	}
	if limit == billingkit.Unlimited {
		return nil
	}

	used, err := s.count(ctx, accountID, res)
	if err != nil {
		return err
	}
	if used >= limit {
		return ErrLimitExceeded
	}
	return nil
}

func (s *service) Usage(ctx context.Context, accountID uuid.UUID, res Resource) (Usage, error) {
	plan, err := s.currentPlan(ctx, accountID)
	if err != nil {
		return Usage{}, err
	}

	limit, ok := plan.LimitFor(string(res))
	if !ok {
		return Usage{}, ErrResourceNotInPlan
	}

	used, err := s.count(ctx, accountID, res)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Used: used, Limit: limit}, nil
}

func (s *service) AllUsage(ctx context.Context, accountID uuid.UUID) (map[Resource]Usage, error) {
	plan, err := s.currentPlan(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make(map[Resource]Usage, len(plan.Limits))
	for name, limit := range plan.Limits {
		res := Resource(name)
		u := Usage{Limit: limit}
		if _, ok := s.counters[res]; ok {
			used, err := s.count(ctx, accountID, res)
			if err != nil {
				return nil, err
			}
			u.Used = used
		}
		out[res] = u
	}
	return out, nil
}

func (s *service) UsagePercent(ctx context.Context, accountID uuid.UUID, res Resource) int {
	u, err := s.Usage(ctx, accountID, res)
	if err != nil {
		return 0
	}
	if u.Limit == billingkit.Unlimited {
		return -1
	}
	if u.Limit == 0 {
		return 100
	}
	pct := int(u.Used * 100 / u.Limit)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (s *service) HasFeature(ctx context.Context, accountID uuid.UUID, feature string) bool {
	plan, err := s.currentPlan(ctx, accountID)
	if err != nil {
		return false
	}
	return plan.HasFeature(feature)
}

func (s *service) CanDowngrade(ctx context.Context, accountID uuid.UUID, targetPlanID int64) error {
	target, ok := s.plans[targetPlanID]
	if !ok {
		return ErrPlanNotFound
	}
	current, err := s.currentPlan(ctx, accountID)
	if err != nil {
		return err
	}

	for name, targetLimit := range target.Limits {
		if targetLimit == billingkit.Unlimited {
			continue
		}
		currentLimit, had := current.LimitFor(name)
		if !had {
			continue
		}
		// Only caps that tighten can strand existing usage.
		if currentLimit != billingkit.Unlimited && currentLimit <= targetLimit {
			continue
		}

		res := Resource(name)
		if _, ok := s.counters[res]; !ok {
			continue
		}
		used, err := s.count(ctx, accountID, res)
		if err != nil {
			return err
		}
		if used > targetLimit {
			return errors.Join(ErrDowngradeBlocked,
				fmt.Errorf("resource %q: %d in use, target cap %d", name, used, targetLimit))
		}
	}
	return nil
}
