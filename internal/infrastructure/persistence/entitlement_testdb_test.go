package persistence

import (
	"testing"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupEntitlementTestDB opens an in-memory SQLite database with the full
// entitlement schema migrated
func setupEntitlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&FeatureModel{},
		&PlanModel{},
		&PlanFeatureModel{},
		&FeatureUsageModel{},
		&SubscriptionModel{},
	)
	require.NoError(t, err)

	return db
}

func newTestFeature(t *testing.T, key string, featureType entitlement.FeatureType, reset entitlement.ResetPeriod) *entitlement.Feature {
	t.Helper()
	feature, err := entitlement.NewFeature(key, key, featureType, reset)
	require.NoError(t, err)
	return feature
}

var testSubject = entitlement.Subject{Type: "team", ID: "team-1"}

var testRef = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
