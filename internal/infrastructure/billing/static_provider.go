package billing

import (
	"context"
	"errors"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
)

// StaticProvider resolves every subject to one fixed plan. Used for
// single-tier deployments and as a deterministic resolver in tests.
type StaticProvider struct {
	plans   entitlement.PlanRepository
	planKey string
}

// NewStaticProvider creates a fixed-plan resolver
func NewStaticProvider(plans entitlement.PlanRepository, planKey string) *StaticProvider {
	return &StaticProvider{plans: plans, planKey: planKey}
}

// ResolvePlan implements entitlement.PlanResolver
func (p *StaticProvider) ResolvePlan(ctx context.Context, _ entitlement.Subject) (*entitlement.Plan, error) {
	plan, err := p.plans.FindByKey(ctx, p.planKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}
