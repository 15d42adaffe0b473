package entitlement

import (
	"context"
	"errors"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeatureInput contains input for creating or updating a catalog feature
type FeatureInput struct {
	Key         string
	Name        string
	Group       string
	Unit        string
	Description string
	Type        entitlement.FeatureType
	ResetPeriod entitlement.ResetPeriod
	Sort        int
	Active      *bool
}

// PlanInput contains input for creating or updating a plan
type PlanInput struct {
	Key               string
	Name              string
	Description       string
	PriceMonthly      decimal.Decimal
	PriceYearly       decimal.Decimal
	ProviderMonthlyID string
	ProviderYearlyID  string
	Sort              int
	Active            *bool
}

// GrantInput contains input for attaching a feature to a plan
type GrantInput struct {
	FeatureKey string
	Value      entitlement.GrantValue
	Unlimited  bool
}

// CatalogService manages the feature and plan catalog: seeding, updates and
// entitlement grants. It never runs on the consumption hot path.
type CatalogService struct {
	features entitlement.FeatureRepository
	plans    entitlement.PlanRepository
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	features entitlement.FeatureRepository,
	plans entitlement.PlanRepository,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		features: features,
		plans:    plans,
		logger:   logger,
	}
}

// UpsertFeature creates the feature when its key is unknown, otherwise
// updates the mutable attributes. The key and type of an existing feature
// never change.
func (s *CatalogService) UpsertFeature(ctx context.Context, input FeatureInput) (*entitlement.Feature, error) {
	feature, err := s.features.FindByKey(ctx, input.Key)
	switch {
	case err == nil:
		feature.Name = input.Name
		feature.Group = input.Group
		feature.Unit = input.Unit
		feature.Description = input.Description
		feature.Sort = input.Sort
		if input.ResetPeriod != "" {
			if !input.ResetPeriod.IsValid() {
				return nil, shared.ErrInvalidInput
			}
			feature.ResetPeriod = input.ResetPeriod
		}
		if input.Active != nil {
			feature.Active = *input.Active
		}
	case errors.Is(err, shared.ErrNotFound):
		feature, err = entitlement.NewFeature(input.Key, input.Name, input.Type, input.ResetPeriod)
		if err != nil {
			return nil, err
		}
		feature.Group = input.Group
		feature.Unit = input.Unit
		feature.Description = input.Description
		feature.Sort = input.Sort
		if input.Active != nil {
			feature.Active = *input.Active
		}
	default:
		return nil, err
	}

	if err := s.features.Save(ctx, feature); err != nil {
		s.logger.Error("Failed to save feature", zap.String("key", input.Key), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Feature upserted",
		zap.String("key", feature.Key),
		zap.String("type", feature.Type.String()))
	return feature, nil
}

// UpsertPlan creates the plan when its key is unknown, otherwise updates the
// mutable attributes
func (s *CatalogService) UpsertPlan(ctx context.Context, input PlanInput) (*entitlement.Plan, error) {
	plan, err := s.plans.FindByKey(ctx, input.Key)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		plan, err = entitlement.NewPlan(input.Key, input.Name)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	plan.Name = input.Name
	plan.Description = input.Description
	plan.PriceMonthly = input.PriceMonthly
	plan.PriceYearly = input.PriceYearly
	plan.ProviderMonthlyID = input.ProviderMonthlyID
	plan.ProviderYearlyID = input.ProviderYearlyID
	plan.Sort = input.Sort
	if input.Active != nil {
		plan.Active = *input.Active
	}

	if err := s.plans.Save(ctx, plan); err != nil {
		s.logger.Error("Failed to save plan", zap.String("key", input.Key), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Plan upserted", zap.String("key", plan.Key))
	return plan, nil
}

// Grant attaches a feature to a plan with an entitlement value, or updates
// the existing grant. The raw value is normalized through the entitlement
// value codec, so a boolean feature can never be granted as unlimited.
func (s *CatalogService) Grant(ctx context.Context, planKey string, input GrantInput) error {
	plan, err := s.plans.FindByKey(ctx, planKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return entitlement.ErrPlanNotFound
		}
		return err
	}
	feature, err := s.features.FindByKey(ctx, input.FeatureKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return entitlement.ErrFeatureNotFound
		}
		return err
	}

	value, unlimited, err := entitlement.EncodeValue(feature.Type, input.Value, input.Unlimited)
	if err != nil {
		return err
	}

	if err := s.plans.Grant(ctx, plan.ID, feature.ID, value, unlimited); err != nil {
		s.logger.Error("Failed to grant feature",
			zap.String("plan", planKey),
			zap.String("feature", input.FeatureKey),
			zap.Error(err))
		return err
	}
	s.logger.Info("Feature granted",
		zap.String("plan", planKey),
		zap.String("feature", input.FeatureKey),
		zap.Bool("unlimited", unlimited))
	return nil
}

// GrantMany applies a set of grants to a plan, stopping at the first failure
func (s *CatalogService) GrantMany(ctx context.Context, planKey string, grants []GrantInput) error {
	for _, grant := range grants {
		if err := s.Grant(ctx, planKey, grant); err != nil {
			return err
		}
	}
	return nil
}

// Revoke detaches a feature from a plan
func (s *CatalogService) Revoke(ctx context.Context, planKey, featureKey string) error {
	plan, err := s.plans.FindByKey(ctx, planKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return entitlement.ErrPlanNotFound
		}
		return err
	}
	feature, err := s.features.FindByKey(ctx, featureKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return entitlement.ErrFeatureNotFound
		}
		return err
	}
	return s.plans.Revoke(ctx, plan.ID, feature.ID)
}

// GetFeature returns a feature by key
func (s *CatalogService) GetFeature(ctx context.Context, key string) (*entitlement.Feature, error) {
	feature, err := s.features.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, entitlement.ErrFeatureNotFound
		}
		return nil, err
	}
	return feature, nil
}

// GetPlan returns a plan by key with its entitlements eagerly loaded
func (s *CatalogService) GetPlan(ctx context.Context, key string) (*entitlement.Plan, error) {
	plan, err := s.plans.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, entitlement.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// ListFeatures returns the feature catalog
func (s *CatalogService) ListFeatures(ctx context.Context, activeOnly bool) ([]entitlement.Feature, error) {
	return s.features.FindAll(ctx, activeOnly)
}

// ListPlans returns the plan catalog with entitlements
func (s *CatalogService) ListPlans(ctx context.Context, activeOnly bool) ([]entitlement.Plan, error) {
	return s.plans.FindAll(ctx, activeOnly)
}
