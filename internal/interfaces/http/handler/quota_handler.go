package handler

import (
	"errors"
	"strconv"
	"time"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// QuotaHandler handles per-subject entitlement queries and the consumption
// surface. The subject is addressed by its (type, id) pair in the path; an
// optional provider query parameter pins a named plan resolver.
type QuotaHandler struct {
	BaseHandler
	limiter *appentitlement.Limiter
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(limiter *appentitlement.Limiter) *QuotaHandler {
	return &QuotaHandler{limiter: limiter}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// QuotaInfo renders a three-state quota: "none", "unlimited", or a bounded
// limit in units or bytes
type QuotaInfo struct {
	Kind  string `json:"kind"`
	Limit int64  `json:"limit,omitempty"`
	Bytes bool   `json:"bytes,omitempty"`
}

// FeatureQuotaResponse is the full quota view of one feature for a subject
type FeatureQuotaResponse struct {
	FeatureKey string    `json:"feature_key"`
	Quota      QuotaInfo `json:"quota"`
	Used       int64     `json:"used"`
	Remaining  QuotaInfo `json:"remaining"`
}

// EnabledResponse reports a boolean feature's state
type EnabledResponse struct {
	FeatureKey string `json:"feature_key"`
	Enabled    bool   `json:"enabled"`
}

// ConsumeRequest is the body for a single consumption or refund. Amount
// accepts a number for countable features or a string such as "500MB" for
// storage features. A zero or omitted amount checks entitlement only.
type ConsumeRequest struct {
	Amount any  `json:"amount"`
	Strict bool `json:"strict"`
}

// ConsumeResponse reports the outcome of a consumption or refund
type ConsumeResponse struct {
	FeatureKey string `json:"feature_key"`
	Allowed    bool   `json:"allowed"`
	Used       int64  `json:"used"`
}

// BatchEntry is one feature amount inside a batch request
type BatchEntry struct {
	Key    string `json:"key" binding:"required"`
	Amount any    `json:"amount"`
}

// BatchConsumeRequest is the body for an all-or-nothing batch consumption
// or refund
type BatchConsumeRequest struct {
	Entries []BatchEntry `json:"entries" binding:"required,min=1,dive"`
	Strict  bool         `json:"strict"`
}

// BatchConsumeResponse reports the outcome of a batch operation. Usage holds
// the post-operation counters keyed by feature, empty when denied.
type BatchConsumeResponse struct {
	Allowed bool             `json:"allowed"`
	Usage   map[string]int64 `json:"usage"`
}

// CheckResponse reports whether a hypothetical consumption would fit
type CheckResponse struct {
	FeatureKey string `json:"feature_key"`
	Allowed    bool   `json:"allowed"`
}

// SetUsageRequest is the body for overwriting a usage counter
type SetUsageRequest struct {
	Value int64 `json:"value"`
}

// UsageRowResponse is one ledger row in a subject's usage summary
type UsageRowResponse struct {
	FeatureID   string    `json:"feature_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Used        int64     `json:"used"`
}

// PlanSummaryResponse is the resolved plan for a subject
type PlanSummaryResponse struct {
	Key          string                `json:"key"`
	Name         string                `json:"name"`
	Entitlements []EntitlementResponse `json:"entitlements"`
}

// ============================================================================
// Handlers
// ============================================================================

// GetPlan resolves and returns the subject's current plan
func (h *QuotaHandler) GetPlan(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}

	plan, err := r.Plan(c.Request.Context())
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}

	ents := make([]EntitlementResponse, len(plan.Entitlements))
	for i := range plan.Entitlements {
		e := &plan.Entitlements[i]
		ents[i] = EntitlementResponse{
			FeatureKey: e.Feature.Key,
			Type:       e.Feature.Type.String(),
			Value:      e.Value,
			Unlimited:  e.Unlimited,
		}
	}
	h.Success(c, PlanSummaryResponse{
		Key:          plan.Key,
		Name:         plan.Name,
		Entitlements: ents,
	})
}

// GetQuota returns the quota, current usage and remaining headroom for one
// feature
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	ctx := c.Request.Context()
	quota, err := r.Quota(ctx, key)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	used, err := r.Usage(ctx, key)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	remaining, err := r.RemainingQuota(ctx, key)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}

	h.Success(c, FeatureQuotaResponse{
		FeatureKey: key,
		Quota:      toQuotaInfo(quota),
		Used:       used,
		Remaining:  toQuotaInfo(remaining),
	})
}

// GetEnabled reports whether a boolean feature is switched on for the
// subject
func (h *QuotaHandler) GetEnabled(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	enabled, err := r.Enabled(c.Request.Context(), key)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	h.Success(c, EnabledResponse{FeatureKey: key, Enabled: enabled})
}

// Check reports whether consuming the given amount would fit within the
// remaining quota, without recording anything
func (h *QuotaHandler) Check(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	amount, err := parseQueryAmount(c.Query("amount"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	allowed, err := r.CanConsume(c.Request.Context(), key, amount)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	h.Success(c, CheckResponse{FeatureKey: key, Allowed: allowed})
}

// Consume records usage against one feature. In strict mode a denial is an
// error response; otherwise it is a 200 with allowed=false.
func (h *QuotaHandler) Consume(c *gin.Context) {
	h.consumeOne(c, false)
}

// Refund reverses previously recorded usage for one feature, clamped at
// zero
func (h *QuotaHandler) Refund(c *gin.Context) {
	h.consumeOne(c, true)
}

func (h *QuotaHandler) consumeOne(c *gin.Context, refund bool) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := parseBodyAmount(req.Amount)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var used int64
	var allowed bool
	if refund {
		used, allowed, err = r.Refund(c.Request.Context(), key, amount, req.Strict)
	} else {
		used, allowed, err = r.Consume(c.Request.Context(), key, amount, req.Strict)
	}
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	h.Success(c, ConsumeResponse{FeatureKey: key, Allowed: allowed, Used: used})
}

// ConsumeMany records usage against several features atomically: either
// every entry fits and all are recorded, or nothing is
func (h *QuotaHandler) ConsumeMany(c *gin.Context) {
	h.consumeBatch(c, false)
}

// RefundMany reverses usage for several features atomically
func (h *QuotaHandler) RefundMany(c *gin.Context) {
	h.consumeBatch(c, true)
}

func (h *QuotaHandler) consumeBatch(c *gin.Context, refund bool) {
	r, ok := h.reader(c)
	if !ok {
		return
	}

	var req BatchConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entries := make([]appentitlement.Consumption, len(req.Entries))
	for i, e := range req.Entries {
		amount, err := parseBodyAmount(e.Amount)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		entries[i] = appentitlement.Consumption{Key: e.Key, Amount: amount}
	}

	var usage map[string]int64
	var allowed bool
	var err error
	if refund {
		usage, allowed, err = r.RefundMany(c.Request.Context(), entries, req.Strict)
	} else {
		usage, allowed, err = r.ConsumeMany(c.Request.Context(), entries, req.Strict)
	}
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	if usage == nil {
		usage = map[string]int64{}
	}
	h.Success(c, BatchConsumeResponse{Allowed: allowed, Usage: usage})
}

// SetUsage overwrites the usage counter for the feature's current period
func (h *QuotaHandler) SetUsage(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	var req SetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	used, err := r.SetUsage(c.Request.Context(), key, req.Value)
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}
	h.Success(c, ConsumeResponse{FeatureKey: key, Allowed: true, Used: used})
}

// ClearUsage removes the usage counter for the feature's current period
func (h *QuotaHandler) ClearUsage(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	key := c.Param("key")

	if err := r.ClearUsage(c.Request.Context(), key); err != nil {
		h.handleQuotaError(c, err)
		return
	}
	h.NoContent(c)
}

// GetUsageSummary returns every ledger row recorded for the subject
func (h *QuotaHandler) GetUsageSummary(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}

	rows, err := r.UsageSummary(c.Request.Context())
	if err != nil {
		h.handleQuotaError(c, err)
		return
	}

	out := make([]UsageRowResponse, len(rows))
	for i, row := range rows {
		out[i] = UsageRowResponse{
			FeatureID:   row.FeatureID.String(),
			PeriodStart: row.PeriodStart,
			PeriodEnd:   row.PeriodEnd,
			Used:        row.Used,
		}
	}
	h.Success(c, out)
}

// ============================================================================
// Helpers
// ============================================================================

// reader resolves the subject from the path and builds a consumption
// session, pinned to the provider query parameter when present
func (h *QuotaHandler) reader(c *gin.Context) (*appentitlement.Reader, bool) {
	subjectType := c.Param("subject_type")
	subjectID := c.Param("subject_id")
	if subjectType == "" || subjectID == "" {
		h.BadRequest(c, "Subject type and id are required")
		return nil, false
	}

	r := h.limiter.ForSubject(entitlement.Subject{Type: subjectType, ID: subjectID})
	if provider := c.Query("provider"); provider != "" {
		r = r.Using(provider)
	}
	return r, true
}

// handleQuotaError maps strict-mode quota denials to 429 before falling
// back to the shared domain error mapping
func (h *QuotaHandler) handleQuotaError(c *gin.Context, err error) {
	var exceeded *appentitlement.QuotaExceededError
	if errors.As(err, &exceeded) {
		h.Error(c, exceeded.HTTPStatusCode(), dto.ErrCodeQuotaExceeded, exceeded.Message)
		return
	}
	h.HandleError(c, err)
}

func toQuotaInfo(q entitlement.Quota) QuotaInfo {
	switch {
	case q.IsUnlimited():
		return QuotaInfo{Kind: "unlimited"}
	case q.IsBounded():
		return QuotaInfo{Kind: "bounded", Limit: q.Limit(), Bytes: q.IsBytes()}
	}
	return QuotaInfo{Kind: "none"}
}

// parseBodyAmount maps a loosely typed JSON amount onto a consumption
// amount. Numbers are counts, strings are byte sizes, nil is zero.
func parseBodyAmount(v any) (entitlement.Amount, error) {
	switch a := v.(type) {
	case nil:
		return entitlement.Count(0), nil
	case float64:
		if a != float64(int64(a)) {
			return entitlement.Amount{}, errors.New("amount must be a whole number")
		}
		return entitlement.Count(int64(a)), nil
	case string:
		return entitlement.Size(a), nil
	}
	return entitlement.Amount{}, errors.New("amount must be a number or a size string")
}

// parseQueryAmount parses the amount query parameter: plain digits are a
// count, anything else is treated as a byte size string
func parseQueryAmount(s string) (entitlement.Amount, error) {
	if s == "" {
		return entitlement.Count(0), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return entitlement.Count(n), nil
	}
	return entitlement.Size(s), nil
}
