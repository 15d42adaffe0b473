package entitlement

import (
	"context"

	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a named subscription tier owning entitlement grants for a set of
// features. Pricing fields are informational; quota enforcement only reads
// the entitlements.
type Plan struct {
	shared.BaseEntity
	Key               string          // Unique stable identifier (e.g. "starter", "pro")
	Name              string          // Human-readable display name
	Description       string          // Optional long description
	PriceMonthly      decimal.Decimal // Monthly price, zero when free
	PriceYearly       decimal.Decimal // Yearly price, zero when free
	ProviderMonthlyID string          // External billing provider price id (monthly)
	ProviderYearlyID  string          // External billing provider price id (yearly)
	Sort              int             // Presentation order
	Active            bool            // Inactive plans cannot be resolved for new subjects
	Entitlements      []Entitlement   // Feature grants, eagerly loaded with the plan
}

// NewPlan creates a subscription plan with no entitlements
func NewPlan(key, name string) (*Plan, error) {
	if key == "" || name == "" {
		return nil, shared.ErrInvalidInput
	}
	return &Plan{
		BaseEntity: shared.NewBaseEntity(),
		Key:        key,
		Name:       name,
		Active:     true,
	}, nil
}

// Entitlement returns the grant for a feature key, or nil when the feature
// is not granted on this plan
func (p *Plan) Entitlement(featureKey string) *Entitlement {
	for i := range p.Entitlements {
		if p.Entitlements[i].Feature.Key == featureKey {
			return &p.Entitlements[i]
		}
	}
	return nil
}

// Entitlement is one (plan, feature) grant: the canonical encoded value and
// the unlimited flag. When Unlimited is true the stored value is ignored.
type Entitlement struct {
	Feature   Feature
	Value     *string
	Unlimited bool
}

// Quota decodes the grant's numeric entitlement
func (e *Entitlement) Quota() (Quota, error) {
	return DecodeQuota(e.Feature.Type, e.Value, e.Unlimited)
}

// Enabled reports whether a boolean grant is switched on. Always false for
// metered features.
func (e *Entitlement) Enabled() bool {
	return e.Feature.Type == FeatureTypeBoolean && DecodeEnabled(e.Value)
}

// PlanRepository persists the plan catalog and its entitlement grants
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	FindByKey(ctx context.Context, key string) (*Plan, error)
	FindAll(ctx context.Context, activeOnly bool) ([]Plan, error)
	Save(ctx context.Context, plan *Plan) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Grant upserts the entitlement row for a (plan, feature) pair
	Grant(ctx context.Context, planID, featureID uuid.UUID, value *string, unlimited bool) error

	// Revoke removes the entitlement row for a (plan, feature) pair
	Revoke(ctx context.Context, planID, featureID uuid.UUID) error
}

// PlanResolver resolves the plan a subject is currently entitled to.
// Implementations live at the billing boundary; returning (nil, nil) means
// the resolver has no plan for the subject.
type PlanResolver interface {
	ResolvePlan(ctx context.Context, subject Subject) (*Plan, error)
}
