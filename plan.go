package billingkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan describes a subscription plan the account can be billed for.
//
// The numeric ID doubles as the tier order: a plan with a higher id is a
// higher tier, and Classify relies on that when telling upgrades from
// downgrades. Assign ids in tier order when building the catalog.
type Plan struct {
	ID        int64            `yaml:"id"`
	Name      string           `yaml:"name"`
	RemoteRef string           `yaml:"remote_ref"` // provider's plan/price identifier (e.g. price_starter_monthly)
	Price     Money            `yaml:"price"`
	TrialDays int              `yaml:"trial_days"`
	Features  []string         `yaml:"features"`
	Limits    map[string]int64 `yaml:"limits"` // -1 represents unlimited
}

// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// IsFree returns true for plans with a zero price.
func (p Plan) IsFree() bool {
	return p.Price.IsZero()
}

// HasFeature reports whether the plan includes a named feature.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// LimitFor returns the limit for a named resource and whether it is defined.
func (p Plan) LimitFor(resource string) (int64, bool) {
	limit, ok := p.Limits[resource]
	return limit, ok
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if the plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// PlanSource defines how the plan catalog is loaded. The catalog is loaded
// once at construction time; sources are not re-read during operation.
type PlanSource interface {
	Load(ctx context.Context) (map[int64]Plan, error)
}

// StaticPlanSource serves a fixed, in-memory catalog.
type StaticPlanSource []Plan

// Load implements PlanSource.
func (s StaticPlanSource) Load(_ context.Context) (map[int64]Plan, error) {
	plans := make(map[int64]Plan, len(s))
	for _, plan := range s {
		if _, exists := plans[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan id %d", plan.ID))
		}
		plans[plan.ID] = plan
	}
	return plans, nil
}

// FilePlanSource loads the catalog from a YAML file:
//
//	plans:
//	  - id: 1
//	    name: Starter
//	    remote_ref: price_starter_monthly
//	    price: { amount: 900, currency: USD }
//	    trial_days: 14
//	    features: [api, export]
//	    limits: { seats: 5, projects: 10 }
type FilePlanSource struct {
	path string
}

// NewFilePlanSource creates a source reading plans from the given YAML file.
func NewFilePlanSource(path string) FilePlanSource {
	return FilePlanSource{path: path}
}

// Load implements PlanSource.
func (f FilePlanSource) Load(_ context.Context) (map[int64]Plan, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	return StaticPlanSource(doc.Plans).Load(context.Background())
}

// validatePlans rejects catalogs the orchestrator cannot operate on.
func validatePlans(plans map[int64]Plan) error {
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %d != plan.ID %d", planID, plan.ID))
		}

		if plan.TrialDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %d has negative trial days: %d", planID, plan.TrialDays))
		}

		if !plan.IsFree() && plan.RemoteRef == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("paid plan %d has no remote plan reference", planID))
		}

		if plan.Price.Amount > 0 && plan.Price.Currency == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %d has a price without a currency", planID))
		}
	}
	return nil
}

// sortedPlans returns the catalog ordered by tier (ascending id).
func sortedPlans(plans map[int64]Plan) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, plan := range plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PlanChangeSummary contains the feature and limit differences between two
// plans, for presenting a pending change to the user.
type PlanChangeSummary struct {
	NewFeatures  []string
	LostFeatures []string
	RaisedLimits map[string][2]int64 // resource -> {from, to}
	CutLimits    map[string][2]int64
}

// ComparePlans returns the differences between the current and target plans.
// Returns nil if either plan is nil.
func ComparePlans(current, target *Plan) *PlanChangeSummary {
	if current == nil || target == nil {
		return nil
	}

	summary := &PlanChangeSummary{
		RaisedLimits: make(map[string][2]int64),
		CutLimits:    make(map[string][2]int64),
	}

	for _, feature := range target.Features {
		if !slices.Contains(current.Features, feature) {
			summary.NewFeatures = append(summary.NewFeatures, feature)
		}
	}
	for _, feature := range current.Features {
		if !slices.Contains(target.Features, feature) {
			summary.LostFeatures = append(summary.LostFeatures, feature)
		}
	}

	for resource, to := range target.Limits {
		from, had := current.Limits[resource]
		switch {
		case !had:
			summary.RaisedLimits[resource] = [2]int64{0, to}
		case to == Unlimited && from != Unlimited:
			summary.RaisedLimits[resource] = [2]int64{from, to}
		case from == Unlimited && to != Unlimited:
			summary.CutLimits[resource] = [2]int64{from, to}
		case to > from:
			summary.RaisedLimits[resource] = [2]int64{from, to}
		case to < from:
			summary.CutLimits[resource] = [2]int64{from, to}
		}
	}
	for resource, from := range current.Limits {
		if _, still := target.Limits[resource]; !still {
			summary.CutLimits[resource] = [2]int64{from, 0}
		}
	}

	return summary
}

// HasCuts returns true if the target plan shrinks any limit or drops features.
func (s *PlanChangeSummary) HasCuts() bool {
	return len(s.CutLimits) > 0 || len(s.LostFeatures) > 0
}
