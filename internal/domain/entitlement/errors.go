package entitlement

import "github.com/featuregate/backend/internal/domain/shared"

// Entitlement domain errors
var (
	// ErrFeatureNotFound indicates the referenced feature key does not exist
	// or is not granted on the resolved plan
	ErrFeatureNotFound = shared.NewDomainError("FEATURE_NOT_FOUND", "Feature not found")

	// ErrPlanNotFound indicates the referenced plan key does not exist
	ErrPlanNotFound = shared.NewDomainError("PLAN_NOT_FOUND", "Plan not found")

	// ErrPlanNotResolved indicates the billing provider returned no plan for
	// the subject and no default fallback exists
	ErrPlanNotResolved = shared.NewDomainError("PLAN_NOT_RESOLVED", "No plan could be resolved for subject")

	// ErrInvalidAmount indicates a consumption or refund amount could not be
	// parsed or is negative
	ErrInvalidAmount = shared.NewDomainError("INVALID_AMOUNT", "Amount could not be parsed or is negative")

	// ErrInvalidBoolean indicates a value is not a recognized boolean spelling
	ErrInvalidBoolean = shared.NewDomainError("INVALID_BOOLEAN", "Value is not a recognized boolean")

	// ErrInvalidInteger indicates a value is not a non-negative integer
	ErrInvalidInteger = shared.NewDomainError("INVALID_INTEGER", "Value is not a non-negative integer")

	// ErrInvalidStorage indicates a value is not a valid storage quantity
	ErrInvalidStorage = shared.NewDomainError("INVALID_STORAGE", "Value is not a valid storage quantity")

	// ErrBooleanUnlimited indicates an attempt to mark a boolean feature's
	// entitlement as unlimited
	ErrBooleanUnlimited = shared.NewDomainError("INVALID_BOOLEAN_UNLIMITED", "A boolean feature cannot be unlimited")

	// ErrUnknownProvider indicates no billing provider is registered under
	// the requested name
	ErrUnknownProvider = shared.NewDomainError("UNKNOWN_BILLING_PROVIDER", "No billing provider registered under that name")
)
