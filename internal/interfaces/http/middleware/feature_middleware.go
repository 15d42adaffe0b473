package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/infrastructure/logger"
	"github.com/featuregate/backend/internal/interfaces/http/dto"
)

const (
	// SubjectTypeHeader carries the caller's subject type on gated routes
	SubjectTypeHeader = "X-Subject-Type"
	// SubjectIDHeader carries the caller's subject identifier on gated routes
	SubjectIDHeader = "X-Subject-ID"

	// GateSubjectKey is the gin context key holding the resolved subject
	// after a gate has admitted the request
	GateSubjectKey = "gate_subject"
)

// SubjectResolver extracts the billable subject a gated request acts on
// behalf of. It returns false when the request carries no usable identity.
type SubjectResolver func(c *gin.Context) (entitlement.Subject, bool)

// HeaderSubjectResolver reads the subject from the X-Subject-Type and
// X-Subject-ID headers. This is the resolver for routes that are not
// addressed to a subject in their path, such as the admin surface.
func HeaderSubjectResolver(c *gin.Context) (entitlement.Subject, bool) {
	subject := entitlement.Subject{
		Type: strings.TrimSpace(c.GetHeader(SubjectTypeHeader)),
		ID:   strings.TrimSpace(c.GetHeader(SubjectIDHeader)),
	}
	return subject, subject.Type != "" && subject.ID != ""
}

// PathSubjectResolver reads the subject from the :subject_type and
// :subject_id route parameters used by the quota surface.
func PathSubjectResolver(c *gin.Context) (entitlement.Subject, bool) {
	subject := entitlement.Subject{
		Type: c.Param("subject_type"),
		ID:   c.Param("subject_id"),
	}
	return subject, subject.Type != "" && subject.ID != ""
}

// FeatureGateConfig configures RequireFeature and RequireQuota.
type FeatureGateConfig struct {
	Limiter *appentitlement.Limiter
	// Resolver defaults to HeaderSubjectResolver when nil
	Resolver SubjectResolver
	// Provider optionally pins the gate to a named billing provider
	// instead of the registry default
	Provider string
	Logger   *zap.Logger
}

func (cfg FeatureGateConfig) resolver() SubjectResolver {
	if cfg.Resolver != nil {
		return cfg.Resolver
	}
	return HeaderSubjectResolver
}

func (cfg FeatureGateConfig) reader(subject entitlement.Subject) *appentitlement.Reader {
	reader := cfg.Limiter.ForSubject(subject)
	if cfg.Provider != "" {
		reader = reader.Using(cfg.Provider)
	}
	return reader
}

// bindSubject attaches the resolved subject to the request context so the
// gate's own log entries, and everything downstream that logs through
// logger.L, carry the subject identity.
func bindSubject(c *gin.Context, cfg FeatureGateConfig, subject entitlement.Subject) {
	base := cfg.Logger
	if base == nil {
		base = logger.FromContext(c.Request.Context())
	}
	ctx, _ := logger.WithSubject(c.Request.Context(), base, subject.String())
	c.Request = c.Request.WithContext(ctx)
}

// RequireFeature admits a request only when the named boolean feature is
// enabled on the caller's plan. A missing subject is rejected with 400, a
// disabled or unknown feature with 403, and a resolution failure with 503.
func RequireFeature(featureKey string, cfg FeatureGateConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		panic("feature gate requires a limiter")
	}
	if featureKey == "" {
		panic("feature gate requires a feature key")
	}

	return func(c *gin.Context) {
		subject, ok := cfg.resolver()(c)
		if !ok {
			abortGate(c, http.StatusBadRequest, dto.ErrCodeBadRequest,
				"Subject identity is required for this endpoint")
			return
		}

		bindSubject(c, cfg, subject)
		enabled, err := cfg.reader(subject).Enabled(c.Request.Context(), featureKey)
		if err != nil {
			handleGateError(c, featureKey, err)
			return
		}
		if !enabled {
			logger.L(c.Request.Context()).Info("Feature gate denied request",
				zap.String("feature", featureKey),
			)
			abortGate(c, http.StatusForbidden, dto.ErrCodeForbidden,
				"Feature '"+featureKey+"' is not available on the current plan")
			return
		}

		c.Set(GateSubjectKey, subject)
		c.Next()
	}
}

// RequireQuota admits a request only when the caller still has headroom for
// one unit of the named metered feature. The request itself is not counted
// against the quota; consumption stays with the handler.
func RequireQuota(featureKey string, cfg FeatureGateConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		panic("feature gate requires a limiter")
	}
	if featureKey == "" {
		panic("feature gate requires a feature key")
	}

	return func(c *gin.Context) {
		subject, ok := cfg.resolver()(c)
		if !ok {
			abortGate(c, http.StatusBadRequest, dto.ErrCodeBadRequest,
				"Subject identity is required for this endpoint")
			return
		}

		bindSubject(c, cfg, subject)
		allowed, err := cfg.reader(subject).CanConsume(c.Request.Context(), featureKey, entitlement.Count(1))
		if err != nil {
			handleGateError(c, featureKey, err)
			return
		}
		if !allowed {
			logger.L(c.Request.Context()).Info("Quota gate denied request",
				zap.String("feature", featureKey),
			)
			abortGate(c, http.StatusTooManyRequests, dto.ErrCodeQuotaExceeded,
				"Quota for '"+featureKey+"' is exhausted on the current plan")
			return
		}

		c.Set(GateSubjectKey, subject)
		c.Next()
	}
}

// GateSubject returns the subject resolved by an upstream gate, if any.
func GateSubject(c *gin.Context) (entitlement.Subject, bool) {
	value, exists := c.Get(GateSubjectKey)
	if !exists {
		return entitlement.Subject{}, false
	}
	subject, ok := value.(entitlement.Subject)
	return subject, ok
}

func handleGateError(c *gin.Context, featureKey string, err error) {
	logger.L(c.Request.Context()).Error("Feature gate check failed",
		zap.String("feature", featureKey),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, entitlement.ErrFeatureNotFound):
		abortGate(c, http.StatusForbidden, dto.ErrCodeForbidden,
			"Feature '"+featureKey+"' is not available on the current plan")
	case errors.Is(err, entitlement.ErrPlanNotResolved):
		abortGate(c, http.StatusServiceUnavailable, dto.ErrCodePlanNotResolved,
			"No plan could be resolved for the subject")
	default:
		abortGate(c, http.StatusServiceUnavailable, dto.ErrCodeInternal,
			"Feature availability could not be determined")
	}
}

func abortGate(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message))
}
