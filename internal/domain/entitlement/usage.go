package entitlement

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// FeatureUsage is one ledger row: how much of a feature a subject has used
// within one reset period. At most one row exists per
// (subject_type, subject_id, feature_id, period_start). Units are
// feature-type dependent: a count for INTEGER features, bytes for STORAGE.
type FeatureUsage struct {
	shared.BaseEntity
	SubjectType string
	SubjectID   string
	FeatureID   uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        int64
}

// NewFeatureUsage creates a zero-usage ledger row for the feature's period
// containing the reference instant
func NewFeatureUsage(subject Subject, feature *Feature, at time.Time) *FeatureUsage {
	start, end := feature.CurrentPeriod(at)
	return &FeatureUsage{
		BaseEntity:  shared.NewBaseEntity(),
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		FeatureID:   feature.ID,
		PeriodStart: start,
		PeriodEnd:   end,
	}
}

// UsageRepository persists per-subject, per-feature, per-period usage
// counters. All period-scoped operations resolve the feature's current
// period from the reference instant.
type UsageRepository interface {
	// Used returns the counter for the feature's current period, zero when
	// no row exists. Never creates a row.
	Used(ctx context.Context, subject Subject, feature *Feature, at time.Time) (int64, error)

	// SetUsed upserts the counter to an absolute non-negative value
	SetUsed(ctx context.Context, subject Subject, feature *Feature, at time.Time, value int64) (int64, error)

	// Increment adds a non-negative amount, creating a zero row when absent,
	// and returns the new counter value
	Increment(ctx context.Context, subject Subject, feature *Feature, at time.Time, amount int64) (int64, error)

	// Decrement subtracts a non-negative amount, clamped at zero, and
	// returns the new counter value
	Decrement(ctx context.Context, subject Subject, feature *Feature, at time.Time, amount int64) (int64, error)

	// Clear deletes the row for the feature's current period only
	Clear(ctx context.Context, subject Subject, feature *Feature, at time.Time) error

	// Summary returns every usage row recorded for the subject
	Summary(ctx context.Context, subject Subject) ([]FeatureUsage, error)

	// CountExpired counts rows whose period ended before the cutoff. When
	// zeroUsage is true, zero-valued counters are counted regardless of age.
	CountExpired(ctx context.Context, cutoff time.Time, zeroUsage bool) (int64, error)

	// DeleteExpired removes rows whose period ended before the cutoff,
	// returning the number of rows deleted. When zeroUsage is true,
	// zero-valued counters are removed regardless of age.
	DeleteExpired(ctx context.Context, cutoff time.Time, zeroUsage bool) (int64, error)

	// InTx runs fn inside one database transaction. The transaction commits
	// when fn returns nil and rolls back otherwise. Row locks acquired
	// through the UsageTx are held until the transaction ends.
	InTx(ctx context.Context, fn func(tx UsageTx) error) error
}

// UsageTx is the transactional view of the ledger. It is only reachable
// through UsageRepository.InTx, so a row lock can never be requested outside
// an open transaction.
type UsageTx interface {
	// LockUsage acquires a row-level write lock on the subject's usage row
	// for the feature's current period, inserting a zero row first when none
	// exists so the lock is held for the rest of the transaction. A stale
	// period end on the returned row is corrected in memory and persisted on
	// the next SaveUsage.
	LockUsage(ctx context.Context, subject Subject, feature *Feature, at time.Time) (*FeatureUsage, error)

	// SaveUsage persists a previously locked usage row
	SaveUsage(ctx context.Context, usage *FeatureUsage) error

	// Used returns the counter for the feature's current period without
	// locking, zero when no row exists
	Used(ctx context.Context, subject Subject, feature *Feature, at time.Time) (int64, error)

	// Increment adds a non-negative amount within the transaction, creating
	// a zero row when absent, and returns the new counter value
	Increment(ctx context.Context, subject Subject, feature *Feature, at time.Time, amount int64) (int64, error)
}
