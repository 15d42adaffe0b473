package handler

import (
	"fmt"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CatalogHandler handles feature and plan catalog HTTP requests
type CatalogHandler struct {
	BaseHandler
	catalog *appentitlement.CatalogService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *appentitlement.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// FeatureRequest is the body for creating or updating a catalog feature
type FeatureRequest struct {
	Name        string `json:"name" binding:"required"`
	Group       string `json:"group"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	Type        string `json:"type" binding:"required,oneof=BOOLEAN INTEGER STORAGE"`
	ResetPeriod string `json:"reset_period" binding:"omitempty,oneof=NONE DAILY WEEKLY MONTHLY YEARLY"`
	Sort        int    `json:"sort"`
	Active      *bool  `json:"active"`
}

// FeatureResponse represents a catalog feature
type FeatureResponse struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Group       string `json:"group,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	ResetPeriod string `json:"reset_period"`
	Sort        int    `json:"sort"`
	Active      bool   `json:"active"`
}

// PlanRequest is the body for creating or updating a plan
type PlanRequest struct {
	Name              string `json:"name" binding:"required"`
	Description       string `json:"description"`
	PriceMonthly      string `json:"price_monthly"`
	PriceYearly       string `json:"price_yearly"`
	ProviderMonthlyID string `json:"provider_monthly_id"`
	ProviderYearlyID  string `json:"provider_yearly_id"`
	Sort              int    `json:"sort"`
	Active            *bool  `json:"active"`
}

// EntitlementResponse represents one (plan, feature) grant
type EntitlementResponse struct {
	FeatureKey string  `json:"feature_key"`
	Type       string  `json:"type"`
	Value      *string `json:"value,omitempty"`
	Unlimited  bool    `json:"unlimited"`
}

// PlanResponse represents a plan with its entitlement grants
type PlanResponse struct {
	ID                string                `json:"id"`
	Key               string                `json:"key"`
	Name              string                `json:"name"`
	Description       string                `json:"description,omitempty"`
	PriceMonthly      string                `json:"price_monthly"`
	PriceYearly       string                `json:"price_yearly"`
	ProviderMonthlyID string                `json:"provider_monthly_id,omitempty"`
	ProviderYearlyID  string                `json:"provider_yearly_id,omitempty"`
	Sort              int                   `json:"sort"`
	Active            bool                  `json:"active"`
	Entitlements      []EntitlementResponse `json:"entitlements"`
}

// GrantRequest is the body for attaching a feature to a plan. Value accepts
// a boolean for BOOLEAN features, a number for INTEGER features, and a
// string such as "1.5GB" for STORAGE features. Omitting the value while
// setting unlimited grants an unbounded quota.
type GrantRequest struct {
	FeatureKey string `json:"feature_key" binding:"required"`
	Value      any    `json:"value"`
	Unlimited  bool   `json:"unlimited"`
}

// GrantBatchRequest is the body for attaching several features at once
type GrantBatchRequest struct {
	Grants []GrantRequest `json:"grants" binding:"required,min=1,dive"`
}

// PlanFeatureResponse is one cell of the pricing matrix: how a catalog
// feature behaves under a given plan
type PlanFeatureResponse struct {
	FeatureKey  string  `json:"feature_key"`
	FeatureName string  `json:"feature_name"`
	Group       string  `json:"group,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Type        string  `json:"type"`
	ResetPeriod string  `json:"reset_period"`
	Granted     bool    `json:"granted"`
	Enabled     bool    `json:"enabled"`
	Unlimited   bool    `json:"unlimited"`
	Limit       int64   `json:"limit,omitempty"`
	Bytes       bool    `json:"bytes,omitempty"`
	Value       *string `json:"value,omitempty"`
}

// PlanViewResponse is a plan's full feature matrix for pricing pages
type PlanViewResponse struct {
	Key          string                `json:"key"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	PriceMonthly string                `json:"price_monthly"`
	PriceYearly  string                `json:"price_yearly"`
	Active       bool                  `json:"active"`
	Features     []PlanFeatureResponse `json:"features"`
}

// ============================================================================
// Feature handlers
// ============================================================================

// ListFeatures returns the feature catalog. Pass active_only=true to hide
// inactive features.
func (h *CatalogHandler) ListFeatures(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	features, err := h.catalog.ListFeatures(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]FeatureResponse, len(features))
	for i := range features {
		out[i] = toFeatureResponse(&features[i])
	}
	h.Success(c, out)
}

// GetFeature returns a single feature by key
func (h *CatalogHandler) GetFeature(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		h.BadRequest(c, "Feature key is required")
		return
	}

	feature, err := h.catalog.GetFeature(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toFeatureResponse(feature))
}

// UpsertFeature creates the feature when the key is unknown, otherwise
// updates its mutable attributes
func (h *CatalogHandler) UpsertFeature(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		h.BadRequest(c, "Feature key is required")
		return
	}

	var req FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	feature, err := h.catalog.UpsertFeature(c.Request.Context(), appentitlement.FeatureInput{
		Key:         key,
		Name:        req.Name,
		Group:       req.Group,
		Unit:        req.Unit,
		Description: req.Description,
		Type:        entitlement.FeatureType(req.Type),
		ResetPeriod: entitlement.ResetPeriod(req.ResetPeriod),
		Sort:        req.Sort,
		Active:      req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toFeatureResponse(feature))
}

// ============================================================================
// Plan handlers
// ============================================================================

// ListPlans returns the plan catalog with entitlements. Pass
// active_only=true to hide inactive plans.
func (h *CatalogHandler) ListPlans(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	plans, err := h.catalog.ListPlans(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]PlanResponse, len(plans))
	for i := range plans {
		out[i] = toPlanResponse(&plans[i])
	}
	h.Success(c, out)
}

// GetPlan returns a single plan by key
func (h *CatalogHandler) GetPlan(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		h.BadRequest(c, "Plan key is required")
		return
	}

	plan, err := h.catalog.GetPlan(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPlanResponse(plan))
}

// UpsertPlan creates the plan when the key is unknown, otherwise updates
// its mutable attributes
func (h *CatalogHandler) UpsertPlan(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		h.BadRequest(c, "Plan key is required")
		return
	}

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	monthly, err := parsePrice(req.PriceMonthly)
	if err != nil {
		h.BadRequest(c, "Invalid monthly price: "+req.PriceMonthly)
		return
	}
	yearly, err := parsePrice(req.PriceYearly)
	if err != nil {
		h.BadRequest(c, "Invalid yearly price: "+req.PriceYearly)
		return
	}

	plan, err := h.catalog.UpsertPlan(c.Request.Context(), appentitlement.PlanInput{
		Key:               key,
		Name:              req.Name,
		Description:       req.Description,
		PriceMonthly:      monthly,
		PriceYearly:       yearly,
		ProviderMonthlyID: req.ProviderMonthlyID,
		ProviderYearlyID:  req.ProviderYearlyID,
		Sort:              req.Sort,
		Active:            req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPlanResponse(plan))
}

// GetPlanFeatures returns a plan's resolved feature matrix: every active
// catalog feature with its quota or enablement under this plan
func (h *CatalogHandler) GetPlanFeatures(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		h.BadRequest(c, "Plan key is required")
		return
	}

	view, err := h.catalog.PlanView(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPlanViewResponse(view))
}

// ComparePlans returns the feature matrix of every plan for pricing and
// comparison pages. Pass active_only=true to hide retired plans.
func (h *CatalogHandler) ComparePlans(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	views, err := h.catalog.ComparePlans(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]PlanViewResponse, len(views))
	for i := range views {
		out[i] = toPlanViewResponse(&views[i])
	}
	h.Success(c, out)
}

// Grant attaches a feature to a plan, replacing any existing grant for the
// same feature
func (h *CatalogHandler) Grant(c *gin.Context) {
	planKey := c.Param("key")
	if planKey == "" {
		h.BadRequest(c, "Plan key is required")
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	input, err := toGrantInput(req)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if err := h.catalog.Grant(c.Request.Context(), planKey, input); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GrantMany attaches several features to a plan in one request. Grants are
// applied in order; the first failure aborts the rest.
func (h *CatalogHandler) GrantMany(c *gin.Context) {
	planKey := c.Param("key")
	if planKey == "" {
		h.BadRequest(c, "Plan key is required")
		return
	}

	var req GrantBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	inputs := make([]appentitlement.GrantInput, len(req.Grants))
	for i, g := range req.Grants {
		input, err := toGrantInput(g)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		inputs[i] = input
	}

	if err := h.catalog.GrantMany(c.Request.Context(), planKey, inputs); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Revoke removes a feature grant from a plan
func (h *CatalogHandler) Revoke(c *gin.Context) {
	planKey := c.Param("key")
	featureKey := c.Param("feature_key")
	if planKey == "" || featureKey == "" {
		h.BadRequest(c, "Plan and feature keys are required")
		return
	}

	if err := h.catalog.Revoke(c.Request.Context(), planKey, featureKey); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ============================================================================
// Helpers
// ============================================================================

func toFeatureResponse(f *entitlement.Feature) FeatureResponse {
	return FeatureResponse{
		ID:          f.ID.String(),
		Key:         f.Key,
		Name:        f.Name,
		Group:       f.Group,
		Unit:        f.Unit,
		Description: f.Description,
		Type:        f.Type.String(),
		ResetPeriod: f.ResetPeriod.String(),
		Sort:        f.Sort,
		Active:      f.Active,
	}
}

func toPlanResponse(p *entitlement.Plan) PlanResponse {
	ents := make([]EntitlementResponse, len(p.Entitlements))
	for i := range p.Entitlements {
		e := &p.Entitlements[i]
		ents[i] = EntitlementResponse{
			FeatureKey: e.Feature.Key,
			Type:       e.Feature.Type.String(),
			Value:      e.Value,
			Unlimited:  e.Unlimited,
		}
	}
	return PlanResponse{
		ID:                p.ID.String(),
		Key:               p.Key,
		Name:              p.Name,
		Description:       p.Description,
		PriceMonthly:      p.PriceMonthly.String(),
		PriceYearly:       p.PriceYearly.String(),
		ProviderMonthlyID: p.ProviderMonthlyID,
		ProviderYearlyID:  p.ProviderYearlyID,
		Sort:              p.Sort,
		Active:            p.Active,
		Entitlements:      ents,
	}
}

func toPlanViewResponse(view *appentitlement.PlanView) PlanViewResponse {
	features := make([]PlanFeatureResponse, len(view.Features))
	for i := range view.Features {
		f := &view.Features[i]
		features[i] = PlanFeatureResponse{
			FeatureKey:  f.FeatureKey,
			FeatureName: f.FeatureName,
			Group:       f.Group,
			Unit:        f.Unit,
			Type:        f.Type.String(),
			ResetPeriod: f.ResetPeriod.String(),
			Granted:     f.Granted,
			Enabled:     f.Enabled,
			Unlimited:   f.Unlimited,
			Limit:       f.Limit,
			Bytes:       f.Bytes,
			Value:       f.Value,
		}
	}
	return PlanViewResponse{
		Key:          view.Plan.Key,
		Name:         view.Plan.Name,
		Description:  view.Plan.Description,
		PriceMonthly: view.Plan.PriceMonthly.String(),
		PriceYearly:  view.Plan.PriceYearly.String(),
		Active:       view.Plan.Active,
		Features:     features,
	}
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// toGrantInput maps the loosely typed JSON value onto a grant value. JSON
// numbers arrive as float64; fractional counts are rejected here rather
// than truncated.
func toGrantInput(req GrantRequest) (appentitlement.GrantInput, error) {
	input := appentitlement.GrantInput{
		FeatureKey: req.FeatureKey,
		Unlimited:  req.Unlimited,
	}

	switch v := req.Value.(type) {
	case nil:
		input.Value = entitlement.NoValue()
	case bool:
		input.Value = entitlement.BoolValue(v)
	case float64:
		if v != float64(int64(v)) {
			return input, fmt.Errorf("grant value for %s must be a whole number", req.FeatureKey)
		}
		input.Value = entitlement.IntValue(int64(v))
	case string:
		input.Value = entitlement.StringValue(v)
	default:
		return input, fmt.Errorf("unsupported grant value type for %s", req.FeatureKey)
	}
	return input, nil
}
