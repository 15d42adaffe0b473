package persistence

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlanModel is the GORM model for subscription plans
type PlanModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Key               string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name              string          `gorm:"type:varchar(255);not null"`
	Description       string          `gorm:"type:text"`
	PriceMonthly      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	PriceYearly       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	ProviderMonthlyID string          `gorm:"type:varchar(255)"`
	ProviderYearlyID  string          `gorm:"type:varchar(255)"`
	Sort              int             `gorm:"not null;default:0"`
	Active            bool            `gorm:"not null;default:true"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`

	Features []PlanFeatureModel `gorm:"foreignKey:PlanID"`
}

// TableName returns the table name for the model
func (PlanModel) TableName() string {
	return "plans"
}

// PlanFeatureModel is the GORM model for (plan, feature) entitlement grants.
// At most one row exists per pair.
type PlanFeatureModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_plan_feature"`
	FeatureID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_plan_feature"`
	Value       *string   `gorm:"type:varchar(100)"`
	IsUnlimited bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`

	Feature FeatureModel `gorm:"foreignKey:FeatureID"`
}

// TableName returns the table name for the model
func (PlanFeatureModel) TableName() string {
	return "plan_features"
}

// ToEntity converts the model to a domain entity
func (m *PlanModel) ToEntity() *entitlement.Plan {
	plan := &entitlement.Plan{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Key:               m.Key,
		Name:              m.Name,
		Description:       m.Description,
		PriceMonthly:      m.PriceMonthly,
		PriceYearly:       m.PriceYearly,
		ProviderMonthlyID: m.ProviderMonthlyID,
		ProviderYearlyID:  m.ProviderYearlyID,
		Sort:              m.Sort,
		Active:            m.Active,
	}
	for i := range m.Features {
		pf := &m.Features[i]
		plan.Entitlements = append(plan.Entitlements, entitlement.Entitlement{
			Feature:   *pf.Feature.ToEntity(),
			Value:     pf.Value,
			Unlimited: pf.IsUnlimited,
		})
	}
	return plan
}

// PlanModelFromEntity creates a model from a domain entity. Entitlement rows
// are managed separately through Grant and Revoke.
func PlanModelFromEntity(e *entitlement.Plan) *PlanModel {
	return &PlanModel{
		ID:                e.ID,
		Key:               e.Key,
		Name:              e.Name,
		Description:       e.Description,
		PriceMonthly:      e.PriceMonthly,
		PriceYearly:       e.PriceYearly,
		ProviderMonthlyID: e.ProviderMonthlyID,
		ProviderYearlyID:  e.ProviderYearlyID,
		Sort:              e.Sort,
		Active:            e.Active,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// PlanRepository implements the entitlement.PlanRepository interface
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindByID retrieves a plan with its entitlements by ID
func (r *PlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Plan, error) {
	var model PlanModel
	err := r.db.WithContext(ctx).
		Preload("Features.Feature").
		First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindByKey retrieves a plan with its entitlements by its stable key
func (r *PlanRepository) FindByKey(ctx context.Context, key string) (*entitlement.Plan, error) {
	var model PlanModel
	err := r.db.WithContext(ctx).
		Preload("Features.Feature").
		First(&model, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindAll retrieves the plan catalog with entitlements, ordered for
// presentation
func (r *PlanRepository) FindAll(ctx context.Context, activeOnly bool) ([]entitlement.Plan, error) {
	query := r.db.WithContext(ctx).
		Preload("Features.Feature").
		Order("sort ASC, key ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var models []PlanModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	plans := make([]entitlement.Plan, len(models))
	for i := range models {
		plans[i] = *models[i].ToEntity()
	}
	return plans, nil
}

// Save persists a plan's own attributes
func (r *PlanRepository) Save(ctx context.Context, plan *entitlement.Plan) error {
	model := PlanModelFromEntity(plan)
	return r.db.WithContext(ctx).Omit("Features").Save(model).Error
}

// Delete removes a plan and its entitlement rows
func (r *PlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PlanFeatureModel{}, "plan_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&PlanModel{}, "id = ?", id).Error
	})
}

// Grant upserts the entitlement row for a (plan, feature) pair
func (r *PlanRepository) Grant(ctx context.Context, planID, featureID uuid.UUID, value *string, unlimited bool) error {
	row := &PlanFeatureModel{
		ID:          uuid.New(),
		PlanID:      planID,
		FeatureID:   featureID,
		Value:       value,
		IsUnlimited: unlimited,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}, {Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "is_unlimited", "updated_at"}),
	}).Create(row).Error
}

// Revoke removes the entitlement row for a (plan, feature) pair
func (r *PlanRepository) Revoke(ctx context.Context, planID, featureID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&PlanFeatureModel{}, "plan_id = ? AND feature_id = ?", planID, featureID).Error
}
