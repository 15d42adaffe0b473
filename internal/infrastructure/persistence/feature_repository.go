package persistence

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeatureModel is the GORM model for catalog features
type FeatureModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key          string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name         string    `gorm:"type:varchar(255);not null"`
	FeatureGroup string    `gorm:"column:feature_group;type:varchar(100)"`
	Unit         string    `gorm:"type:varchar(50)"`
	Description  string    `gorm:"type:text"`
	Type         string    `gorm:"type:varchar(20);not null"`
	ResetPeriod  string    `gorm:"type:varchar(20);not null;default:'NONE'"`
	Sort         int       `gorm:"not null;default:0"`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (FeatureModel) TableName() string {
	return "features"
}

// ToEntity converts the model to a domain entity
func (m *FeatureModel) ToEntity() *entitlement.Feature {
	return &entitlement.Feature{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Key:         m.Key,
		Name:        m.Name,
		Group:       m.FeatureGroup,
		Unit:        m.Unit,
		Description: m.Description,
		Type:        entitlement.FeatureType(m.Type),
		ResetPeriod: entitlement.ResetPeriod(m.ResetPeriod),
		Sort:        m.Sort,
		Active:      m.Active,
	}
}

// FeatureModelFromEntity creates a model from a domain entity
func FeatureModelFromEntity(e *entitlement.Feature) *FeatureModel {
	return &FeatureModel{
		ID:           e.ID,
		Key:          e.Key,
		Name:         e.Name,
		FeatureGroup: e.Group,
		Unit:         e.Unit,
		Description:  e.Description,
		Type:         string(e.Type),
		ResetPeriod:  string(e.ResetPeriod),
		Sort:         e.Sort,
		Active:       e.Active,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// FeatureRepository implements the entitlement.FeatureRepository interface
type FeatureRepository struct {
	db *gorm.DB
}

// NewFeatureRepository creates a new feature repository
func NewFeatureRepository(db *gorm.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// FindByID retrieves a feature by its ID
func (r *FeatureRepository) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Feature, error) {
	var model FeatureModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindByKey retrieves a feature by its stable key
func (r *FeatureRepository) FindByKey(ctx context.Context, key string) (*entitlement.Feature, error) {
	var model FeatureModel
	if err := r.db.WithContext(ctx).First(&model, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindAll retrieves the feature catalog ordered for presentation
func (r *FeatureRepository) FindAll(ctx context.Context, activeOnly bool) ([]entitlement.Feature, error) {
	query := r.db.WithContext(ctx).Order("sort ASC, key ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var models []FeatureModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	features := make([]entitlement.Feature, len(models))
	for i := range models {
		features[i] = *models[i].ToEntity()
	}
	return features, nil
}

// Save persists a feature
func (r *FeatureRepository) Save(ctx context.Context, feature *entitlement.Feature) error {
	model := FeatureModelFromEntity(feature)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a feature by ID
func (r *FeatureRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&FeatureModel{}, "id = ?", id).Error
}
