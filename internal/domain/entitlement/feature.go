package entitlement

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Feature is a catalog entry describing one meterable or switchable
// capability. The key is its stable public identifier; everything else is
// descriptive or configuration and may change.
type Feature struct {
	shared.BaseEntity
	Key         string      // Unique stable identifier (e.g. "sites", "storage")
	Name        string      // Human-readable display name
	Group       string      // Optional grouping for presentation (e.g. "limits")
	Unit        string      // Optional display unit (e.g. "projects", "GB")
	Description string      // Optional long description
	Type        FeatureType // How the entitlement value is interpreted
	ResetPeriod ResetPeriod // When the usage counter starts over
	Sort        int         // Presentation order
	Active      bool        // Inactive features are hidden from catalogs
}

// NewFeature creates a catalog feature. The reset period defaults to NONE.
func NewFeature(key, name string, featureType FeatureType, resetPeriod ResetPeriod) (*Feature, error) {
	if key == "" || name == "" {
		return nil, shared.ErrInvalidInput
	}
	if !featureType.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	if resetPeriod == "" {
		resetPeriod = ResetPeriodNone
	}
	if !resetPeriod.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	return &Feature{
		BaseEntity:  shared.NewBaseEntity(),
		Key:         key,
		Name:        name,
		Type:        featureType,
		ResetPeriod: resetPeriod,
		Active:      true,
	}, nil
}

// CurrentPeriod resolves the usage bucket this feature's counter lives in
// at the given instant
func (f *Feature) CurrentPeriod(ref time.Time) (start, end time.Time) {
	return ResolvePeriod(f.ResetPeriod, ref)
}

// FeatureRepository persists the feature catalog
type FeatureRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Feature, error)
	FindByKey(ctx context.Context, key string) (*Feature, error)
	FindAll(ctx context.Context, activeOnly bool) ([]Feature, error)
	Save(ctx context.Context, feature *Feature) error
	Delete(ctx context.Context, id uuid.UUID) error
}
