package persistence

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeatureUsageModel is the GORM model for usage ledger rows. Uniqueness on
// (subject_type, subject_id, feature_id, period_start) guarantees at most
// one counter per subject, feature and period.
type FeatureUsageModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubjectType string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_feature_usage_period"`
	SubjectID   string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_feature_usage_period"`
	FeatureID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_feature_usage_period"`
	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_feature_usage_period"`
	PeriodEnd   time.Time `gorm:"not null;index"`
	Used        int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (FeatureUsageModel) TableName() string {
	return "feature_usages"
}

// ToEntity converts the model to a domain entity
func (m *FeatureUsageModel) ToEntity() *entitlement.FeatureUsage {
	return &entitlement.FeatureUsage{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		SubjectType: m.SubjectType,
		SubjectID:   m.SubjectID,
		FeatureID:   m.FeatureID,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Used:        m.Used,
	}
}

// FeatureUsageModelFromEntity creates a model from a domain entity
func FeatureUsageModelFromEntity(e *entitlement.FeatureUsage) *FeatureUsageModel {
	return &FeatureUsageModel{
		ID:          e.ID,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		FeatureID:   e.FeatureID,
		PeriodStart: e.PeriodStart,
		PeriodEnd:   e.PeriodEnd,
		Used:        e.Used,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// UsageRepository implements the entitlement.UsageRepository interface on
// GORM. All transactional work goes through InTx so that row locks are only
// obtainable inside an open transaction.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func periodScope(db *gorm.DB, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (*gorm.DB, time.Time, time.Time) {
	start, end := feature.CurrentPeriod(at)
	return db.Where(
		"subject_type = ? AND subject_id = ? AND feature_id = ? AND period_start = ?",
		subject.Type, subject.ID, feature.ID, start,
	), start, end
}

// Used returns the counter for the feature's current period, zero when no
// row exists
func (r *UsageRepository) Used(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (int64, error) {
	return usedIn(r.db.WithContext(ctx), subject, feature, at)
}

func usedIn(db *gorm.DB, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (int64, error) {
	var model FeatureUsageModel
	scope, _, _ := periodScope(db, subject, feature, at)
	if err := scope.First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return model.Used, nil
}

// SetUsed upserts the counter to an absolute non-negative value
func (r *UsageRepository) SetUsed(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time, value int64) (int64, error) {
	if value < 0 {
		return 0, entitlement.ErrInvalidAmount
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := readOrCreate(tx, subject, feature, at)
		if err != nil {
			return err
		}
		row.Used = value
		return tx.Save(row).Error
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Increment adds a non-negative amount as an atomic SQL-side addition,
// creating the row when absent
func (r *UsageRepository) Increment(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time, amount int64) (int64, error) {
	if amount < 0 {
		return 0, entitlement.ErrInvalidAmount
	}
	var newUsed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		used, err := incrementIn(tx, subject, feature, at, amount)
		if err != nil {
			return err
		}
		newUsed = used
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newUsed, nil
}

// incrementIn applies the delta as a single SQL-side addition so that
// concurrent increments on the same row serialize inside the database
// instead of overwriting each other through a read-modify-write cycle.
// When no row exists yet the insert carries the delta as its initial value;
// a concurrent insert of the same key resolves on the unique index by
// adding the loser's delta to the winner's row.
func incrementIn(tx *gorm.DB, subject entitlement.Subject, feature *entitlement.Feature, at time.Time, amount int64) (int64, error) {
	scope, _, _ := periodScope(tx.Model(&FeatureUsageModel{}), subject, feature, at)
	res := scope.UpdateColumn("used", gorm.Expr("used + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		fresh := FeatureUsageModelFromEntity(entitlement.NewFeatureUsage(subject, feature, at))
		fresh.Used = amount
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_type"}, {Name: "subject_id"}, {Name: "feature_id"}, {Name: "period_start"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"used": gorm.Expr("feature_usages.used + excluded.used"),
			}),
		}).Create(fresh).Error; err != nil {
			return 0, err
		}
	}
	return usedIn(tx, subject, feature, at)
}

// Decrement subtracts a non-negative amount, clamped at zero
func (r *UsageRepository) Decrement(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time, amount int64) (int64, error) {
	if amount < 0 {
		return 0, entitlement.ErrInvalidAmount
	}
	var newUsed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Same SQL-side arithmetic as incrementIn, with the clamp at zero
		// expressed in the statement itself.
		scope, _, _ := periodScope(tx.Model(&FeatureUsageModel{}), subject, feature, at)
		res := scope.UpdateColumn("used", gorm.Expr("CASE WHEN used > ? THEN used - ? ELSE 0 END", amount, amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			fresh := FeatureUsageModelFromEntity(entitlement.NewFeatureUsage(subject, feature, at))
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "subject_type"}, {Name: "subject_id"}, {Name: "feature_id"}, {Name: "period_start"}},
				DoNothing: true,
			}).Create(fresh).Error; err != nil {
				return err
			}
		}
		used, err := usedIn(tx, subject, feature, at)
		if err != nil {
			return err
		}
		newUsed = used
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newUsed, nil
}

// Clear deletes the row for the feature's current period only
func (r *UsageRepository) Clear(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) error {
	scope, _, _ := periodScope(r.db.WithContext(ctx), subject, feature, at)
	return scope.Delete(&FeatureUsageModel{}).Error
}

// Summary returns every usage row recorded for the subject
func (r *UsageRepository) Summary(ctx context.Context, subject entitlement.Subject) ([]entitlement.FeatureUsage, error) {
	var models []FeatureUsageModel
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID).
		Order("period_start DESC, feature_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	usages := make([]entitlement.FeatureUsage, len(models))
	for i := range models {
		usages[i] = *models[i].ToEntity()
	}
	return usages, nil
}

func expiredScope(db *gorm.DB, cutoff time.Time, zeroUsage bool) *gorm.DB {
	if zeroUsage {
		return db.Where("period_end < ? OR used = 0", cutoff)
	}
	return db.Where("period_end < ?", cutoff)
}

// CountExpired counts rows whose period ended before the cutoff
func (r *UsageRepository) CountExpired(ctx context.Context, cutoff time.Time, zeroUsage bool) (int64, error) {
	var count int64
	err := expiredScope(r.db.WithContext(ctx).Model(&FeatureUsageModel{}), cutoff, zeroUsage).
		Count(&count).Error
	return count, err
}

// DeleteExpired removes rows whose period ended before the cutoff
func (r *UsageRepository) DeleteExpired(ctx context.Context, cutoff time.Time, zeroUsage bool) (int64, error) {
	result := expiredScope(r.db.WithContext(ctx), cutoff, zeroUsage).
		Delete(&FeatureUsageModel{})
	return result.RowsAffected, result.Error
}

// InTx runs fn inside one database transaction, committing on nil and
// rolling back otherwise
func (r *UsageRepository) InTx(ctx context.Context, fn func(tx entitlement.UsageTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&usageTx{db: tx})
	})
}

// usageTx implements entitlement.UsageTx on an open GORM transaction
type usageTx struct {
	db *gorm.DB
}

// LockUsage acquires a row-level write lock on the subject's usage row for
// the feature's current period, inserting a zero row first when none
// exists. SQLite has no FOR UPDATE; there the database-level write lock of
// the surrounding transaction provides the mutual exclusion instead.
func (t *usageTx) LockUsage(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (*entitlement.FeatureUsage, error) {
	db := t.db.WithContext(ctx)
	start, end := feature.CurrentPeriod(at)

	locked := db
	if dialectSupportsRowLocks(db) {
		locked = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var model FeatureUsageModel
	err := locked.
		Where("subject_type = ? AND subject_id = ? AND feature_id = ? AND period_start = ?",
			subject.Type, subject.ID, feature.ID, start).
		First(&model).Error
	if err == gorm.ErrRecordNotFound {
		// Insert the zero row, then lock it so the lock survives for the
		// rest of the transaction. A concurrent insert of the same key loses
		// on the unique index and falls through to locking the winner's row.
		fresh := FeatureUsageModelFromEntity(entitlement.NewFeatureUsage(subject, feature, at))
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_type"}, {Name: "subject_id"}, {Name: "feature_id"}, {Name: "period_start"}},
			DoNothing: true,
		}).Create(fresh).Error; err != nil {
			return nil, err
		}
		err = locked.
			Where("subject_type = ? AND subject_id = ? AND feature_id = ? AND period_start = ?",
				subject.Type, subject.ID, feature.ID, start).
			First(&model).Error
	}
	if err != nil {
		return nil, err
	}

	usage := model.ToEntity()
	// Correct a stale period end in memory when the calendar boundary moved;
	// it is persisted on the next SaveUsage.
	if !usage.PeriodEnd.Equal(end) {
		usage.PeriodEnd = end
	}
	return usage, nil
}

// SaveUsage persists a previously locked usage row
func (t *usageTx) SaveUsage(ctx context.Context, usage *entitlement.FeatureUsage) error {
	return t.db.WithContext(ctx).Save(FeatureUsageModelFromEntity(usage)).Error
}

// Used returns the counter for the feature's current period without locking
func (t *usageTx) Used(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (int64, error) {
	return usedIn(t.db.WithContext(ctx), subject, feature, at)
}

// Increment adds a non-negative amount within the transaction
func (t *usageTx) Increment(ctx context.Context, subject entitlement.Subject, feature *entitlement.Feature, at time.Time, amount int64) (int64, error) {
	if amount < 0 {
		return 0, entitlement.ErrInvalidAmount
	}
	return incrementIn(t.db.WithContext(ctx), subject, feature, at, amount)
}

func dialectSupportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	}
	return false
}

func readOrCreate(tx *gorm.DB, subject entitlement.Subject, feature *entitlement.Feature, at time.Time) (*FeatureUsageModel, error) {
	var model FeatureUsageModel
	scope, _, end := periodScope(tx, subject, feature, at)
	err := scope.First(&model).Error
	if err == gorm.ErrRecordNotFound {
		model = *FeatureUsageModelFromEntity(entitlement.NewFeatureUsage(subject, feature, at))
		if err := tx.Create(&model).Error; err != nil {
			return nil, err
		}
		return &model, nil
	}
	if err != nil {
		return nil, err
	}
	if !model.PeriodEnd.Equal(end) {
		model.PeriodEnd = end
	}
	return &model, nil
}
