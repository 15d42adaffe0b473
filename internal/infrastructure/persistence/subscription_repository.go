package persistence

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionModel is the GORM model for provider subscription snapshots
type SubscriptionModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SubjectType string     `gorm:"type:varchar(100);not null;index:idx_subscription_subject"`
	SubjectID   string     `gorm:"type:varchar(100);not null;index:idx_subscription_subject"`
	Provider    string     `gorm:"type:varchar(50);not null"`
	PriceID     string     `gorm:"type:varchar(255);not null"`
	Status      string     `gorm:"type:varchar(20);not null"`
	EndsAt      *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToEntity converts the model to a domain entity
func (m *SubscriptionModel) ToEntity() *entitlement.Subscription {
	return &entitlement.Subscription{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		SubjectType: m.SubjectType,
		SubjectID:   m.SubjectID,
		Provider:    m.Provider,
		PriceID:     m.PriceID,
		Status:      entitlement.SubscriptionStatus(m.Status),
		EndsAt:      m.EndsAt,
	}
}

// SubscriptionModelFromEntity creates a model from a domain entity
func SubscriptionModelFromEntity(e *entitlement.Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		ID:          e.ID,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Provider:    e.Provider,
		PriceID:     e.PriceID,
		Status:      string(e.Status),
		EndsAt:      e.EndsAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// SubscriptionRepository implements the entitlement.SubscriptionRepository
// interface
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindForSubject returns the subject's most recent subscription
func (r *SubscriptionRepository) FindForSubject(ctx context.Context, subject entitlement.Subject) (*entitlement.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Save persists a subscription snapshot
func (r *SubscriptionRepository) Save(ctx context.Context, subscription *entitlement.Subscription) error {
	model := SubscriptionModelFromEntity(subscription)
	return r.db.WithContext(ctx).Save(model).Error
}
