package entitlement

// FeatureType classifies how a feature's entitlement value is interpreted
type FeatureType string

const (
	// FeatureTypeBoolean is an on/off switch with no metered usage
	FeatureTypeBoolean FeatureType = "BOOLEAN"

	// FeatureTypeInteger is a countable quota (seats, projects, API calls)
	FeatureTypeInteger FeatureType = "INTEGER"

	// FeatureTypeStorage is a byte-sized quota expressed as "500MB", "1.5GB", etc.
	FeatureTypeStorage FeatureType = "STORAGE"
)

// String returns the string representation of FeatureType
func (t FeatureType) String() string {
	return string(t)
}

// IsValid returns true if the feature type is valid
func (t FeatureType) IsValid() bool {
	switch t {
	case FeatureTypeBoolean, FeatureTypeInteger, FeatureTypeStorage:
		return true
	}
	return false
}

// IsMetered returns true if usage of this feature type is counted in the ledger
func (t FeatureType) IsMetered() bool {
	return t == FeatureTypeInteger || t == FeatureTypeStorage
}

// ResetPeriod defines the calendar window after which a feature's usage
// counter starts again from zero
type ResetPeriod string

const (
	// ResetPeriodNone means usage accumulates over the subject's lifetime
	ResetPeriodNone ResetPeriod = "NONE"

	// ResetPeriodDaily resets at the start of each calendar day
	ResetPeriodDaily ResetPeriod = "DAILY"

	// ResetPeriodWeekly resets at the start of each ISO week (Monday)
	ResetPeriodWeekly ResetPeriod = "WEEKLY"

	// ResetPeriodMonthly resets at the start of each calendar month
	ResetPeriodMonthly ResetPeriod = "MONTHLY"

	// ResetPeriodYearly resets at the start of each calendar year
	ResetPeriodYearly ResetPeriod = "YEARLY"
)

// String returns the string representation of ResetPeriod
func (p ResetPeriod) String() string {
	return string(p)
}

// IsValid returns true if the reset period is valid
func (p ResetPeriod) IsValid() bool {
	switch p {
	case ResetPeriodNone, ResetPeriodDaily, ResetPeriodWeekly, ResetPeriodMonthly, ResetPeriodYearly:
		return true
	}
	return false
}
