package entitlement

import (
	"fmt"
	"net/http"

	"github.com/featuregate/backend/internal/domain/entitlement"
)

// QuotaExceededError is returned in strict mode when a consumption or refund
// cannot be satisfied: the quota is exhausted, or the requested amount does
// not parse. It carries enough context to report "feature X, needed Y, had Z
// left".
type QuotaExceededError struct {
	FeatureKey string
	Requested  entitlement.Amount
	Remaining  entitlement.Quota
	Message    string
}

// Error implements the error interface
func (e *QuotaExceededError) Error() string {
	return e.Message
}

// HTTPStatusCode returns the HTTP status code for this error (429 Too Many Requests)
func (e *QuotaExceededError) HTTPStatusCode() int {
	return http.StatusTooManyRequests
}

// NewQuotaExceededError creates a new QuotaExceededError
func NewQuotaExceededError(featureKey string, requested entitlement.Amount, remaining entitlement.Quota) *QuotaExceededError {
	return &QuotaExceededError{
		FeatureKey: featureKey,
		Requested:  requested,
		Remaining:  remaining,
		Message: fmt.Sprintf(
			"Quota exceeded for %s: requested %s, remaining %s",
			featureKey, requested.String(), remaining.String(),
		),
	}
}
