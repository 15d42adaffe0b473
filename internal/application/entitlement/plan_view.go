package entitlement

import (
	"context"
	"errors"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
)

// PlanFeatureView describes how a single catalog feature behaves under one
// plan. Features absent from the plan still appear with Granted false, so a
// pricing page can render the full matrix without joining the catalog
// itself.
type PlanFeatureView struct {
	FeatureKey  string
	FeatureName string
	Group       string
	Unit        string
	Type        entitlement.FeatureType
	ResetPeriod entitlement.ResetPeriod

	Granted   bool
	Enabled   bool
	Unlimited bool
	// Limit is the decoded bound for granted metered features, zero
	// otherwise. Bytes reports whether it counts bytes.
	Limit int64
	Bytes bool
	// Value is the raw grant value as stored, nil when not granted
	Value *string
}

// PlanView is the feature matrix of one plan, resolved without a subject.
// Quota and enablement come straight from the plan's grants; no usage is
// consulted.
type PlanView struct {
	Plan     entitlement.Plan
	Features []PlanFeatureView
}

// PlanView resolves a plan's grants against the active feature catalog.
// Grants that fail to decode are reported as not granted rather than
// failing the whole view.
func (s *CatalogService) PlanView(ctx context.Context, planKey string) (*PlanView, error) {
	plan, err := s.plans.FindByKey(ctx, planKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, entitlement.ErrPlanNotFound
		}
		return nil, err
	}
	features, err := s.features.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}
	return &PlanView{
		Plan:     *plan,
		Features: planFeatureViews(plan, features),
	}, nil
}

// ComparePlans resolves the feature matrix for every plan in one pass,
// ordered the way the plan catalog is ordered. Pass activeOnly to restrict
// the comparison to plans currently on sale.
func (s *CatalogService) ComparePlans(ctx context.Context, activeOnly bool) ([]PlanView, error) {
	plans, err := s.plans.FindAll(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	features, err := s.features.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}

	views := make([]PlanView, 0, len(plans))
	for i := range plans {
		views = append(views, PlanView{
			Plan:     plans[i],
			Features: planFeatureViews(&plans[i], features),
		})
	}
	return views, nil
}

func planFeatureViews(plan *entitlement.Plan, features []entitlement.Feature) []PlanFeatureView {
	views := make([]PlanFeatureView, 0, len(features))
	for i := range features {
		feature := &features[i]
		view := PlanFeatureView{
			FeatureKey:  feature.Key,
			FeatureName: feature.Name,
			Group:       feature.Group,
			Unit:        feature.Unit,
			Type:        feature.Type,
			ResetPeriod: feature.ResetPeriod,
		}

		if ent := plan.Entitlement(feature.Key); ent != nil {
			view.Value = ent.Value
			if feature.Type == entitlement.FeatureTypeBoolean {
				view.Granted = true
				view.Enabled = ent.Enabled()
			} else if quota, err := ent.Quota(); err == nil {
				view.Granted = true
				view.Unlimited = quota.IsUnlimited()
				if quota.IsBounded() {
					view.Limit = quota.Limit()
					view.Bytes = quota.IsBytes()
				}
			}
		}

		views = append(views, view)
	}
	return views
}
