package entitlements

import "errors"

var (
	ErrNoActivePlan        = errors.New("entitlements.errors.no_active_plan")
	ErrPlanNotFound        = errors.New("entitlements.errors.plan_not_found")
	ErrResourceNotInPlan   = errors.New("entitlements.errors.resource_not_in_plan")
	ErrNoCounterRegistered = errors.New("entitlements.errors.no_counter_registered")
	ErrLimitExceeded       = errors.New("entitlements.errors.limit_exceeded")
	ErrDowngradeBlocked    = errors.New("entitlements.errors.downgrade_blocked")
	ErrFailedToLoadPlans   = errors.New("entitlements.errors.failed_to_load_plans")
	ErrFailedToCountUsage  = errors.New("entitlements.errors.failed_to_count_usage")
)
