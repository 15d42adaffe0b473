package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/featuregate/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFeatureRepo is an in-memory entitlement.FeatureRepository
type fakeFeatureRepo struct {
	features map[string]*entitlement.Feature
}

func newFakeFeatureRepo() *fakeFeatureRepo {
	return &fakeFeatureRepo{features: make(map[string]*entitlement.Feature)}
}

func (r *fakeFeatureRepo) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Feature, error) {
	for _, f := range r.features {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeFeatureRepo) FindByKey(ctx context.Context, key string) (*entitlement.Feature, error) {
	f, ok := r.features[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return f, nil
}

func (r *fakeFeatureRepo) FindAll(ctx context.Context, activeOnly bool) ([]entitlement.Feature, error) {
	var out []entitlement.Feature
	for _, f := range r.features {
		if activeOnly && !f.Active {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (r *fakeFeatureRepo) Save(ctx context.Context, feature *entitlement.Feature) error {
	r.features[feature.Key] = feature
	return nil
}

func (r *fakeFeatureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for key, f := range r.features {
		if f.ID == id {
			delete(r.features, key)
		}
	}
	return nil
}

// fakePlanRepo is an in-memory entitlement.PlanRepository. Grants are
// recorded per (plan, feature) pair so tests can assert on upsert semantics.
type fakePlanRepo struct {
	plans  map[string]*entitlement.Plan
	grants map[string]fakeGrant
}

type fakeGrant struct {
	value     *string
	unlimited bool
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{
		plans:  make(map[string]*entitlement.Plan),
		grants: make(map[string]fakeGrant),
	}
}

func grantKey(planID, featureID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", planID, featureID)
}

func (r *fakePlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Plan, error) {
	for _, p := range r.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePlanRepo) FindByKey(ctx context.Context, key string) (*entitlement.Plan, error) {
	p, ok := r.plans[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakePlanRepo) FindAll(ctx context.Context, activeOnly bool) ([]entitlement.Plan, error) {
	var out []entitlement.Plan
	for _, p := range r.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePlanRepo) Save(ctx context.Context, plan *entitlement.Plan) error {
	r.plans[plan.Key] = plan
	return nil
}

func (r *fakePlanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for key, p := range r.plans {
		if p.ID == id {
			delete(r.plans, key)
		}
	}
	return nil
}

func (r *fakePlanRepo) Grant(ctx context.Context, planID, featureID uuid.UUID, value *string, unlimited bool) error {
	r.grants[grantKey(planID, featureID)] = fakeGrant{value: value, unlimited: unlimited}
	return nil
}

func (r *fakePlanRepo) Revoke(ctx context.Context, planID, featureID uuid.UUID) error {
	delete(r.grants, grantKey(planID, featureID))
	return nil
}

type catalogFixture struct {
	router   *gin.Engine
	features *fakeFeatureRepo
	plans    *fakePlanRepo
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	features := newFakeFeatureRepo()
	plans := newFakePlanRepo()
	h := NewCatalogHandler(appentitlement.NewCatalogService(features, plans, zap.NewNop()))

	router := gin.New()
	g := router.Group("/catalog")
	g.GET("/features", h.ListFeatures)
	g.GET("/features/:key", h.GetFeature)
	g.PUT("/features/:key", h.UpsertFeature)
	g.GET("/plans", h.ListPlans)
	g.GET("/comparison", h.ComparePlans)
	g.GET("/plans/:key", h.GetPlan)
	g.GET("/plans/:key/features", h.GetPlanFeatures)
	g.PUT("/plans/:key", h.UpsertPlan)
	g.POST("/plans/:key/grants", h.Grant)
	g.POST("/plans/:key/grants/batch", h.GrantMany)
	g.DELETE("/plans/:key/grants/:feature_key", h.Revoke)

	return &catalogFixture{router: router, features: features, plans: plans}
}

func (f *catalogFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (f *catalogFixture) seedFeature(t *testing.T, key string, featureType entitlement.FeatureType, reset entitlement.ResetPeriod) *entitlement.Feature {
	t.Helper()
	feature, err := entitlement.NewFeature(key, key, featureType, reset)
	require.NoError(t, err)
	f.features.features[key] = feature
	return feature
}

func (f *catalogFixture) seedPlan(t *testing.T, key string) *entitlement.Plan {
	t.Helper()
	plan, err := entitlement.NewPlan(key, key)
	require.NoError(t, err)
	f.plans.plans[key] = plan
	return plan
}

func TestCatalogHandler_UpsertFeature(t *testing.T) {
	t.Run("creates a new feature", func(t *testing.T) {
		f := newCatalogFixture(t)

		w := f.do(t, http.MethodPut, "/catalog/features/api-calls", gin.H{
			"name":         "API Calls",
			"type":         "INTEGER",
			"reset_period": "MONTHLY",
			"unit":         "calls",
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "api-calls", data["key"])
		assert.Equal(t, "INTEGER", data["type"])
		assert.Equal(t, "MONTHLY", data["reset_period"])
		assert.Equal(t, true, data["active"])
	})

	t.Run("updates mutable attributes of an existing feature", func(t *testing.T) {
		f := newCatalogFixture(t)
		f.seedFeature(t, "storage", entitlement.FeatureTypeStorage, entitlement.ResetPeriodMonthly)

		inactive := false
		w := f.do(t, http.MethodPut, "/catalog/features/storage", gin.H{
			"name":   "Storage Space",
			"type":   "STORAGE",
			"active": inactive,
		})

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, "Storage Space", data["name"])
		assert.Equal(t, false, data["active"])
	})

	t.Run("rejects an unknown feature type", func(t *testing.T) {
		f := newCatalogFixture(t)

		w := f.do(t, http.MethodPut, "/catalog/features/bad", gin.H{
			"name": "Bad",
			"type": "FLOAT",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCatalogHandler_GetFeature(t *testing.T) {
	f := newCatalogFixture(t)
	f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)

	t.Run("returns an existing feature", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/features/sso", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, "sso", data["key"])
		assert.Equal(t, "BOOLEAN", data["type"])
	})

	t.Run("returns 404 for an unknown key", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/features/missing", nil)

		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})
}

func TestCatalogHandler_ListFeatures(t *testing.T) {
	f := newCatalogFixture(t)
	f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)
	retired := f.seedFeature(t, "legacy", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)
	retired.Active = false

	t.Run("lists everything by default", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/features", nil)

		require.Equal(t, http.StatusOK, w.Code)
		rows := decodeResponse(t, w).Data.([]interface{})
		assert.Len(t, rows, 2)
	})

	t.Run("active_only hides inactive features", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/features?active_only=true", nil)

		require.Equal(t, http.StatusOK, w.Code)
		rows := decodeResponse(t, w).Data.([]interface{})
		require.Len(t, rows, 1)
		assert.Equal(t, "sso", rows[0].(map[string]interface{})["key"])
	})
}

func TestCatalogHandler_UpsertPlan(t *testing.T) {
	t.Run("creates a plan with prices", func(t *testing.T) {
		f := newCatalogFixture(t)

		w := f.do(t, http.MethodPut, "/catalog/plans/pro", gin.H{
			"name":          "Pro",
			"price_monthly": "29.99",
			"price_yearly":  "299",
		})

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, "pro", data["key"])
		assert.Equal(t, "29.99", data["price_monthly"])
		assert.Equal(t, "299", data["price_yearly"])
	})

	t.Run("rejects an unparseable price", func(t *testing.T) {
		f := newCatalogFixture(t)

		w := f.do(t, http.MethodPut, "/catalog/plans/pro", gin.H{
			"name":          "Pro",
			"price_monthly": "twenty",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCatalogHandler_Grant(t *testing.T) {
	t.Run("grants an integer entitlement", func(t *testing.T) {
		f := newCatalogFixture(t)
		plan := f.seedPlan(t, "pro")
		feature := f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)

		w := f.do(t, http.MethodPost, "/catalog/plans/pro/grants", gin.H{
			"feature_key": "api-calls",
			"value":       100,
		})

		require.Equal(t, http.StatusNoContent, w.Code)
		grant, ok := f.plans.grants[grantKey(plan.ID, feature.ID)]
		require.True(t, ok)
		require.NotNil(t, grant.value)
		assert.Equal(t, "100", *grant.value)
		assert.False(t, grant.unlimited)
	})

	t.Run("grants an unlimited storage entitlement", func(t *testing.T) {
		f := newCatalogFixture(t)
		plan := f.seedPlan(t, "pro")
		feature := f.seedFeature(t, "transfer", entitlement.FeatureTypeStorage, entitlement.ResetPeriodMonthly)

		w := f.do(t, http.MethodPost, "/catalog/plans/pro/grants", gin.H{
			"feature_key": "transfer",
			"unlimited":   true,
		})

		require.Equal(t, http.StatusNoContent, w.Code)
		grant, ok := f.plans.grants[grantKey(plan.ID, feature.ID)]
		require.True(t, ok)
		assert.True(t, grant.unlimited)
	})

	t.Run("rejects a fractional count", func(t *testing.T) {
		f := newCatalogFixture(t)
		f.seedPlan(t, "pro")
		f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)

		w := f.do(t, http.MethodPost, "/catalog/plans/pro/grants", gin.H{
			"feature_key": "api-calls",
			"value":       2.5,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unlimited on a boolean feature", func(t *testing.T) {
		f := newCatalogFixture(t)
		f.seedPlan(t, "pro")
		f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)

		w := f.do(t, http.MethodPost, "/catalog/plans/pro/grants", gin.H{
			"feature_key": "sso",
			"unlimited":   true,
		})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidGrant, resp.Error.Code)
	})

	t.Run("returns 404 for an unknown plan", func(t *testing.T) {
		f := newCatalogFixture(t)
		f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)

		w := f.do(t, http.MethodPost, "/catalog/plans/missing/grants", gin.H{
			"feature_key": "sso",
			"value":       true,
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCatalogHandler_GrantMany(t *testing.T) {
	f := newCatalogFixture(t)
	plan := f.seedPlan(t, "pro")
	calls := f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)
	sso := f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)

	w := f.do(t, http.MethodPost, "/catalog/plans/pro/grants/batch", gin.H{
		"grants": []gin.H{
			{"feature_key": "api-calls", "value": 100},
			{"feature_key": "sso", "value": true},
		},
	})

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, f.plans.grants, grantKey(plan.ID, calls.ID))
	assert.Contains(t, f.plans.grants, grantKey(plan.ID, sso.ID))
}

func TestCatalogHandler_Revoke(t *testing.T) {
	f := newCatalogFixture(t)
	plan := f.seedPlan(t, "pro")
	feature := f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)
	f.plans.grants[grantKey(plan.ID, feature.ID)] = fakeGrant{}

	w := f.do(t, http.MethodDelete, "/catalog/plans/pro/grants/api-calls", nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, f.plans.grants, grantKey(plan.ID, feature.ID))
}

func (f *catalogFixture) seedEntitlement(t *testing.T, plan *entitlement.Plan, feature *entitlement.Feature, raw entitlement.GrantValue, unlimited bool) {
	t.Helper()
	value, isUnlimited, err := entitlement.EncodeValue(feature.Type, raw, unlimited)
	require.NoError(t, err)
	plan.Entitlements = append(plan.Entitlements, entitlement.Entitlement{
		Feature:   *feature,
		Value:     value,
		Unlimited: isUnlimited,
	})
}

func TestCatalogHandler_GetPlanFeatures(t *testing.T) {
	t.Run("resolves the full feature matrix", func(t *testing.T) {
		f := newCatalogFixture(t)
		plan := f.seedPlan(t, "pro")
		calls := f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)
		f.seedFeature(t, "storage", entitlement.FeatureTypeStorage, entitlement.ResetPeriodMonthly)
		sso := f.seedFeature(t, "sso", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)
		legacy := f.seedFeature(t, "legacy-export", entitlement.FeatureTypeBoolean, entitlement.ResetPeriodNone)
		legacy.Active = false

		f.seedEntitlement(t, plan, calls, entitlement.IntValue(100), false)
		f.seedEntitlement(t, plan, sso, entitlement.BoolValue(true), false)

		w := f.do(t, http.MethodGet, "/catalog/plans/pro/features", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var view PlanViewResponse
		require.NoError(t, json.Unmarshal(raw, &view))

		assert.Equal(t, "pro", view.Key)
		require.Len(t, view.Features, 3)

		byKey := make(map[string]PlanFeatureResponse, len(view.Features))
		for _, feature := range view.Features {
			byKey[feature.FeatureKey] = feature
		}

		assert.True(t, byKey["api-calls"].Granted)
		assert.Equal(t, int64(100), byKey["api-calls"].Limit)
		assert.False(t, byKey["api-calls"].Bytes)

		assert.False(t, byKey["storage"].Granted)
		assert.Zero(t, byKey["storage"].Limit)

		assert.True(t, byKey["sso"].Granted)
		assert.True(t, byKey["sso"].Enabled)

		assert.NotContains(t, byKey, "legacy-export")
	})

	t.Run("decodes storage grants into byte limits", func(t *testing.T) {
		f := newCatalogFixture(t)
		plan := f.seedPlan(t, "pro")
		storage := f.seedFeature(t, "storage", entitlement.FeatureTypeStorage, entitlement.ResetPeriodMonthly)
		transfer := f.seedFeature(t, "transfer", entitlement.FeatureTypeStorage, entitlement.ResetPeriodMonthly)

		f.seedEntitlement(t, plan, storage, entitlement.StringValue("1GB"), false)
		f.seedEntitlement(t, plan, transfer, entitlement.NoValue(), true)

		w := f.do(t, http.MethodGet, "/catalog/plans/pro/features", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var view PlanViewResponse
		require.NoError(t, json.Unmarshal(raw, &view))

		byKey := make(map[string]PlanFeatureResponse, len(view.Features))
		for _, feature := range view.Features {
			byKey[feature.FeatureKey] = feature
		}

		assert.True(t, byKey["storage"].Granted)
		assert.Equal(t, int64(1073741824), byKey["storage"].Limit)
		assert.True(t, byKey["storage"].Bytes)

		assert.True(t, byKey["transfer"].Granted)
		assert.True(t, byKey["transfer"].Unlimited)
		assert.Zero(t, byKey["transfer"].Limit)
	})

	t.Run("returns 404 for an unknown plan", func(t *testing.T) {
		f := newCatalogFixture(t)

		w := f.do(t, http.MethodGet, "/catalog/plans/missing/features", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})
}

func TestCatalogHandler_ComparePlans(t *testing.T) {
	f := newCatalogFixture(t)
	free := f.seedPlan(t, "free")
	pro := f.seedPlan(t, "pro")
	retired := f.seedPlan(t, "legacy")
	retired.Active = false
	calls := f.seedFeature(t, "api-calls", entitlement.FeatureTypeInteger, entitlement.ResetPeriodMonthly)

	f.seedEntitlement(t, free, calls, entitlement.IntValue(10), false)
	f.seedEntitlement(t, pro, calls, entitlement.IntValue(1000), false)

	decode := func(w *httptest.ResponseRecorder) []PlanViewResponse {
		resp := decodeResponse(t, w)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var views []PlanViewResponse
		require.NoError(t, json.Unmarshal(raw, &views))
		return views
	}

	t.Run("returns every plan's matrix", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/comparison", nil)
		require.Equal(t, http.StatusOK, w.Code)

		views := decode(w)
		require.Len(t, views, 3)

		limits := make(map[string]int64, len(views))
		for _, view := range views {
			require.Len(t, view.Features, 1)
			limits[view.Key] = view.Features[0].Limit
		}
		assert.Equal(t, int64(10), limits["free"])
		assert.Equal(t, int64(1000), limits["pro"])
	})

	t.Run("active_only hides retired plans", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/catalog/comparison?active_only=true", nil)
		require.Equal(t, http.StatusOK, w.Code)

		views := decode(w)
		require.Len(t, views, 2)
		for _, view := range views {
			assert.NotEqual(t, "legacy", view.Key)
		}
	})
}
