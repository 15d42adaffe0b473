package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProviderRegistry(t *testing.T) {
	stripePlan := &entitlement.Plan{Key: "pro"}
	staticPlan := &entitlement.Plan{Key: "free"}

	t.Run("first registration becomes the default", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Register("stripe", &stubResolver{plan: stripePlan})
		registry.Register("static", &stubResolver{plan: staticPlan})

		resolver, err := registry.Resolver("")
		require.NoError(t, err)
		plan, err := resolver.ResolvePlan(context.Background(), entitlement.Subject{})
		require.NoError(t, err)
		assert.Equal(t, "pro", plan.Key)
	})

	t.Run("named lookup", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Register("stripe", &stubResolver{plan: stripePlan})
		registry.Register("static", &stubResolver{plan: staticPlan})

		resolver, err := registry.Resolver("static")
		require.NoError(t, err)
		plan, err := resolver.ResolvePlan(context.Background(), entitlement.Subject{})
		require.NoError(t, err)
		assert.Equal(t, "free", plan.Key)
	})

	t.Run("default can be reassigned", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Register("stripe", &stubResolver{plan: stripePlan})
		registry.Register("static", &stubResolver{plan: staticPlan})
		registry.SetDefault("static")

		resolver, err := registry.Resolver("")
		require.NoError(t, err)
		plan, err := resolver.ResolvePlan(context.Background(), entitlement.Subject{})
		require.NoError(t, err)
		assert.Equal(t, "free", plan.Key)
	})

	t.Run("unknown provider", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Register("stripe", &stubResolver{plan: stripePlan})

		_, err := registry.Resolver("paddle")
		assert.ErrorIs(t, err, entitlement.ErrUnknownProvider)
	})

	t.Run("empty registry has no default", func(t *testing.T) {
		registry := NewProviderRegistry()
		_, err := registry.Resolver("")
		assert.ErrorIs(t, err, entitlement.ErrUnknownProvider)
	})
}

func TestReader_Using(t *testing.T) {
	ctx := context.Background()
	clock := testClock()

	registry := NewProviderRegistry()
	registry.Register("stripe", &stubResolver{plan: proPlan(t)})
	freePlan, err := entitlement.NewPlan("free", "Free")
	require.NoError(t, err)
	registry.Register("static", &stubResolver{plan: freePlan})

	limiter := NewLimiter(registry, newMemoryLedger(), zap.NewNop(), WithClock(clock))
	reader := limiter.ForSubject(entitlement.Subject{Type: "team", ID: "team-1"})

	plan, err := reader.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pro", plan.Key)

	// Using pins a named provider and drops the cached plan
	plan, err = reader.Using("static").Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "free", plan.Key)
}

func testClock() func() time.Time {
	at := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}
