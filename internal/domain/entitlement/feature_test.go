package entitlement

import (
	"testing"
	"time"

	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeature(t *testing.T) {
	t.Run("creates an active feature with defaults", func(t *testing.T) {
		feature, err := NewFeature("sites", "Sites", FeatureTypeInteger, "")

		require.NoError(t, err)
		assert.Equal(t, "sites", feature.Key)
		assert.Equal(t, ResetPeriodNone, feature.ResetPeriod)
		assert.True(t, feature.Active)
		assert.NotEqual(t, feature.ID.String(), "00000000-0000-0000-0000-000000000000")
	})

	t.Run("rejects missing key or invalid type", func(t *testing.T) {
		_, err := NewFeature("", "Sites", FeatureTypeInteger, ResetPeriodNone)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = NewFeature("sites", "Sites", FeatureType("FLOAT"), ResetPeriodNone)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = NewFeature("sites", "Sites", FeatureTypeInteger, ResetPeriod("SOMETIMES"))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestFeatureCurrentPeriod(t *testing.T) {
	feature, err := NewFeature("api-calls", "API calls", FeatureTypeInteger, ResetPeriodMonthly)
	require.NoError(t, err)

	start, end := feature.CurrentPeriod(time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, date(2026, time.March, 1), start)
	assert.Equal(t, date(2026, time.March, 31), end)
}

func TestPlanEntitlement(t *testing.T) {
	plan, err := NewPlan("starter", "Starter")
	require.NoError(t, err)

	sites, err := NewFeature("sites", "Sites", FeatureTypeInteger, ResetPeriodNone)
	require.NoError(t, err)
	sso, err := NewFeature("sso", "Single sign-on", FeatureTypeBoolean, ResetPeriodNone)
	require.NoError(t, err)

	three := "3"
	on := "1"
	plan.Entitlements = []Entitlement{
		{Feature: *sites, Value: &three},
		{Feature: *sso, Value: &on},
	}

	t.Run("finds grants by feature key", func(t *testing.T) {
		ent := plan.Entitlement("sites")
		require.NotNil(t, ent)
		quota, err := ent.Quota()
		require.NoError(t, err)
		assert.Equal(t, int64(3), quota.Limit())

		assert.Nil(t, plan.Entitlement("backups"))
	})

	t.Run("boolean grants report enabled", func(t *testing.T) {
		ent := plan.Entitlement("sso")
		require.NotNil(t, ent)
		assert.True(t, ent.Enabled())

		// Metered features are never "enabled"
		assert.False(t, plan.Entitlement("sites").Enabled())
	})
}
