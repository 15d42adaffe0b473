package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"go.uber.org/zap"
)

// Limiter is the entry point of the consumption engine. It carries the
// shared collaborators and binds subjects to reader sessions via For.
type Limiter struct {
	providers *ProviderRegistry
	usage     entitlement.UsageRepository
	logger    *zap.Logger
	now       func() time.Time
}

// LimiterOption customizes a Limiter
type LimiterOption func(*Limiter)

// WithClock overrides the reference clock used to resolve usage periods
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates the consumption engine
func NewLimiter(providers *ProviderRegistry, usage entitlement.UsageRepository, logger *zap.Logger, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		providers: providers,
		usage:     usage,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// For opens a reader session bound to a billable entity
func (l *Limiter) For(b entitlement.Billable) *Reader {
	return l.ForSubject(entitlement.SubjectOf(b))
}

// ForSubject opens a reader session bound to a raw subject identity
func (l *Limiter) ForSubject(subject entitlement.Subject) *Reader {
	return &Reader{limiter: l, subject: subject}
}

// Consumption is one (feature, amount) entry of a batch operation. Batch
// order is the lock acquisition order; concurrent batches touching an
// overlapping feature set must keep a consistent order or they may deadlock.
type Consumption struct {
	Key    string
	Amount entitlement.Amount
}

// Reader is a consumption session bound to one subject. The subject's plan
// is resolved once per session and cached.
type Reader struct {
	limiter  *Limiter
	subject  entitlement.Subject
	provider string
	plan     *entitlement.Plan
}

// Subject returns the identity this session is bound to
func (r *Reader) Subject() entitlement.Subject {
	return r.subject
}

// Using returns a fresh session for the same subject pinned to a named
// billing provider, discarding any cached plan
func (r *Reader) Using(provider string) *Reader {
	return &Reader{limiter: r.limiter, subject: r.subject, provider: provider}
}

// Plan resolves and caches the subject's plan. Returns ErrPlanNotResolved
// when the billing provider has no plan for the subject.
func (r *Reader) Plan(ctx context.Context) (*entitlement.Plan, error) {
	if r.plan != nil {
		return r.plan, nil
	}
	resolver, err := r.limiter.providers.Resolver(r.provider)
	if err != nil {
		return nil, err
	}
	plan, err := resolver.ResolvePlan(ctx, r.subject)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		r.limiter.logger.Warn("No plan resolved for subject",
			zap.String("subject", r.subject.String()),
			zap.String("provider", r.provider))
		return nil, entitlement.ErrPlanNotResolved
	}
	r.plan = plan
	return plan, nil
}

// Quota returns the numeric entitlement for a feature key: none when the
// feature is absent from the plan or boolean, otherwise unlimited or the
// decoded count/byte bound.
func (r *Reader) Quota(ctx context.Context, key string) (entitlement.Quota, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return entitlement.NoQuota(), err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		return entitlement.NoQuota(), nil
	}
	return ent.Quota()
}

// Enabled reports whether a boolean feature is switched on for the subject.
// False when the feature is absent or metered.
func (r *Reader) Enabled(ctx context.Context, key string) (bool, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return false, err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		return false, nil
	}
	return ent.Enabled(), nil
}

// Disabled is the negation of Enabled
func (r *Reader) Disabled(ctx context.Context, key string) (bool, error) {
	enabled, err := r.Enabled(ctx, key)
	return !enabled, err
}

// Unlimited reports whether the feature's entitlement is unbounded
func (r *Reader) Unlimited(ctx context.Context, key string) (bool, error) {
	quota, err := r.Quota(ctx, key)
	if err != nil {
		return false, err
	}
	return quota.IsUnlimited(), nil
}

// Usage returns the subject's counter for the feature's current period.
// Unlike the quota queries, an unknown feature key is surfaced as
// ErrFeatureNotFound since it indicates a configuration error.
func (r *Reader) Usage(ctx context.Context, key string) (int64, error) {
	ent, err := r.entitled(ctx, key)
	if err != nil {
		return 0, err
	}
	return r.limiter.usage.Used(ctx, r.subject, &ent.Feature, r.limiter.now())
}

// RemainingQuota returns what the subject can still consume: none when the
// feature is not entitled, unlimited, a 0/1 count for booleans, or the
// bounded difference between quota and current usage (never negative).
func (r *Reader) RemainingQuota(ctx context.Context, key string) (entitlement.Quota, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return entitlement.NoQuota(), err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		return entitlement.NoQuota(), nil
	}
	return r.remaining(ctx, ent)
}

func (r *Reader) remaining(ctx context.Context, ent *entitlement.Entitlement) (entitlement.Quota, error) {
	if ent.Unlimited {
		return entitlement.UnlimitedQuota(), nil
	}
	if ent.Feature.Type == entitlement.FeatureTypeBoolean {
		if ent.Enabled() {
			return entitlement.CountQuota(1), nil
		}
		return entitlement.CountQuota(0), nil
	}
	quota, err := ent.Quota()
	if err != nil || !quota.IsBounded() {
		return entitlement.NoQuota(), err
	}
	used, err := r.limiter.usage.Used(ctx, r.subject, &ent.Feature, r.limiter.now())
	if err != nil {
		return entitlement.NoQuota(), err
	}
	left := quota.Limit() - used
	if left < 0 {
		left = 0
	}
	return boundedQuota(quota.IsBytes(), left), nil
}

// CanConsume reports whether consuming the amount would succeed right now.
// Read-only: takes no locks, so a concurrent consumer may still win the
// race; Consume re-checks under lock.
func (r *Reader) CanConsume(ctx context.Context, key string, amount entitlement.Amount) (bool, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return false, err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		return false, nil
	}
	if ent.Unlimited {
		return true, nil
	}
	if ent.Feature.Type == entitlement.FeatureTypeBoolean {
		return amount.IsZero() || ent.Enabled(), nil
	}
	delta, derr := amount.Delta(ent.Feature.Type)
	if derr != nil {
		return false, nil
	}
	remaining, err := r.remaining(ctx, ent)
	if err != nil {
		return false, err
	}
	if !remaining.IsBounded() {
		return false, nil
	}
	return delta <= remaining.Limit(), nil
}

// ExceededQuota is the negation of CanConsume
func (r *Reader) ExceededQuota(ctx context.Context, key string, amount entitlement.Amount) (bool, error) {
	ok, err := r.CanConsume(ctx, key, amount)
	return !ok, err
}

// CanConsumeMany evaluates a whole batch without locking or writing.
// Duplicate metered keys sum their amounts, duplicate boolean keys collapse
// to a single enabled check, zero amounts are dropped. Non-strict mode
// reports the first failure as a false return; strict mode surfaces it as a
// *QuotaExceededError (or ErrFeatureNotFound for an unknown key).
func (r *Reader) CanConsumeMany(ctx context.Context, entries []Consumption, strict bool) (bool, error) {
	check := func() error {
		batch, err := r.normalize(ctx, entries)
		if err != nil {
			return err
		}
		for i := range batch {
			e := &batch[i]
			if e.ent.Unlimited {
				continue
			}
			if e.ent.Feature.Type == entitlement.FeatureTypeBoolean {
				if !e.ent.Enabled() {
					return &denial{err: NewQuotaExceededError(e.ent.Feature.Key, e.amount, entitlement.CountQuota(0))}
				}
				continue
			}
			remaining, rerr := r.remaining(ctx, e.ent)
			if rerr != nil {
				return rerr
			}
			if !remaining.IsBounded() || e.delta > remaining.Limit() {
				return &denial{err: NewQuotaExceededError(e.ent.Feature.Key, e.requested(), remaining)}
			}
		}
		return nil
	}
	return resolveDenial(check(), strict)
}

// Consume atomically reserves an amount of a feature and returns the
// subject's usage after the call. A zero amount never writes and never
// fails. Boolean features are checked against Enabled and never touch the
// ledger. Unlimited features still record usage. In non-strict mode a quota
// violation or unparseable amount reports ok=false with no error and no
// write; strict mode surfaces the same conditions as *QuotaExceededError.
func (r *Reader) Consume(ctx context.Context, key string, amount entitlement.Amount, strict bool) (used int64, ok bool, err error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return 0, false, err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		ok, err := resolveDenial(notEntitled(key), strict)
		return 0, ok, err
	}
	feature := &ent.Feature
	now := r.limiter.now()

	if amount.IsZero() {
		current, err := r.limiter.usage.Used(ctx, r.subject, feature, now)
		return current, err == nil, err
	}

	if feature.Type == entitlement.FeatureTypeBoolean {
		if !ent.Enabled() {
			ok, err := resolveDenial(&denial{err: NewQuotaExceededError(key, amount, entitlement.CountQuota(0))}, strict)
			return 0, ok, err
		}
		current, err := r.limiter.usage.Used(ctx, r.subject, feature, now)
		return current, err == nil, err
	}

	var newUsed int64
	txErr := r.limiter.usage.InTx(ctx, func(tx entitlement.UsageTx) error {
		delta, derr := amount.Delta(feature.Type)
		if derr != nil {
			return &denial{err: NewQuotaExceededError(key, amount, entitlement.NoQuota())}
		}
		if ent.Unlimited {
			current, err := tx.Increment(ctx, r.subject, feature, now, delta)
			if err != nil {
				return err
			}
			newUsed = current
			return nil
		}
		quota, qerr := ent.Quota()
		if qerr != nil || !quota.IsBounded() {
			return &denial{err: NewQuotaExceededError(key, amount, entitlement.NoQuota())}
		}
		row, err := tx.LockUsage(ctx, r.subject, feature, now)
		if err != nil {
			return err
		}
		remaining := quota.Limit() - row.Used
		if remaining < 0 {
			remaining = 0
		}
		if delta > remaining {
			return &denial{err: NewQuotaExceededError(key, amount, boundedQuota(quota.IsBytes(), remaining))}
		}
		row.Used += delta
		if err := tx.SaveUsage(ctx, row); err != nil {
			return err
		}
		newUsed = row.Used
		return nil
	})
	if txErr != nil {
		r.logDenied("consume", key, txErr)
		ok, err := resolveDenial(txErr, strict)
		return 0, ok, err
	}
	return newUsed, true, nil
}

// ConsumeMany atomically reserves amounts across several features in one
// transaction: either every entry commits or none do. The result maps each
// key to the subject's usage after the call; boolean entries echo current
// usage untouched.
func (r *Reader) ConsumeMany(ctx context.Context, entries []Consumption, strict bool) (map[string]int64, bool, error) {
	batch, err := r.normalize(ctx, entries)
	if err != nil {
		r.logDenied("consume_many", "", err)
		ok, rerr := resolveDenial(err, strict)
		return nil, ok, rerr
	}
	result := make(map[string]int64, len(batch))
	if len(batch) == 0 {
		return result, true, nil
	}
	now := r.limiter.now()
	txErr := r.limiter.usage.InTx(ctx, func(tx entitlement.UsageTx) error {
		// Validate every entry, taking row locks as we go, before writing
		// anything: the batch is all-or-nothing.
		locked := make([]*entitlement.FeatureUsage, len(batch))
		for i := range batch {
			e := &batch[i]
			switch {
			case e.ent.Feature.Type == entitlement.FeatureTypeBoolean:
				if !e.ent.Enabled() {
					return &denial{err: NewQuotaExceededError(e.ent.Feature.Key, e.amount, entitlement.CountQuota(0))}
				}
			case e.ent.Unlimited:
				// delta already validated during normalization
			default:
				quota, qerr := e.ent.Quota()
				if qerr != nil || !quota.IsBounded() {
					return &denial{err: NewQuotaExceededError(e.ent.Feature.Key, e.requested(), entitlement.NoQuota())}
				}
				row, err := tx.LockUsage(ctx, r.subject, &e.ent.Feature, now)
				if err != nil {
					return err
				}
				remaining := quota.Limit() - row.Used
				if remaining < 0 {
					remaining = 0
				}
				if e.delta > remaining {
					return &denial{err: NewQuotaExceededError(e.ent.Feature.Key, e.requested(), boundedQuota(quota.IsBytes(), remaining))}
				}
				locked[i] = row
			}
		}
		for i := range batch {
			e := &batch[i]
			key := e.ent.Feature.Key
			switch {
			case e.ent.Feature.Type == entitlement.FeatureTypeBoolean:
				current, err := tx.Used(ctx, r.subject, &e.ent.Feature, now)
				if err != nil {
					return err
				}
				result[key] = current
			case e.ent.Unlimited:
				current, err := tx.Increment(ctx, r.subject, &e.ent.Feature, now, e.delta)
				if err != nil {
					return err
				}
				result[key] = current
			default:
				locked[i].Used += e.delta
				if err := tx.SaveUsage(ctx, locked[i]); err != nil {
					return err
				}
				result[key] = locked[i].Used
			}
		}
		return nil
	})
	if txErr != nil {
		r.logDenied("consume_many", "", txErr)
		ok, err := resolveDenial(txErr, strict)
		return nil, ok, err
	}
	return result, true, nil
}

// Refund atomically returns an amount of a feature, clamping usage at zero.
// Boolean features are not tracked and simply echo current usage.
func (r *Reader) Refund(ctx context.Context, key string, amount entitlement.Amount, strict bool) (used int64, ok bool, err error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return 0, false, err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		ok, err := resolveDenial(notEntitled(key), strict)
		return 0, ok, err
	}
	feature := &ent.Feature
	now := r.limiter.now()

	if amount.IsZero() || feature.Type == entitlement.FeatureTypeBoolean {
		current, err := r.limiter.usage.Used(ctx, r.subject, feature, now)
		return current, err == nil, err
	}

	var newUsed int64
	txErr := r.limiter.usage.InTx(ctx, func(tx entitlement.UsageTx) error {
		delta, derr := amount.Delta(feature.Type)
		if derr != nil {
			return &denial{err: NewQuotaExceededError(key, amount, entitlement.NoQuota())}
		}
		row, err := tx.LockUsage(ctx, r.subject, feature, now)
		if err != nil {
			return err
		}
		row.Used -= delta
		if row.Used < 0 {
			row.Used = 0
		}
		if err := tx.SaveUsage(ctx, row); err != nil {
			return err
		}
		newUsed = row.Used
		return nil
	})
	if txErr != nil {
		r.logDenied("refund", key, txErr)
		ok, err := resolveDenial(txErr, strict)
		return 0, ok, err
	}
	return newUsed, true, nil
}

// RefundMany atomically returns amounts across several features in one
// transaction, clamping each counter at zero. Missing features and
// unparseable amounts abort the whole batch exactly like ConsumeMany.
func (r *Reader) RefundMany(ctx context.Context, entries []Consumption, strict bool) (map[string]int64, bool, error) {
	batch, err := r.normalize(ctx, entries)
	if err != nil {
		r.logDenied("refund_many", "", err)
		ok, rerr := resolveDenial(err, strict)
		return nil, ok, rerr
	}
	result := make(map[string]int64, len(batch))
	if len(batch) == 0 {
		return result, true, nil
	}
	now := r.limiter.now()
	txErr := r.limiter.usage.InTx(ctx, func(tx entitlement.UsageTx) error {
		for i := range batch {
			e := &batch[i]
			key := e.ent.Feature.Key
			if e.ent.Feature.Type == entitlement.FeatureTypeBoolean {
				current, err := tx.Used(ctx, r.subject, &e.ent.Feature, now)
				if err != nil {
					return err
				}
				result[key] = current
				continue
			}
			row, err := tx.LockUsage(ctx, r.subject, &e.ent.Feature, now)
			if err != nil {
				return err
			}
			row.Used -= e.delta
			if row.Used < 0 {
				row.Used = 0
			}
			if err := tx.SaveUsage(ctx, row); err != nil {
				return err
			}
			result[key] = row.Used
		}
		return nil
	})
	if txErr != nil {
		r.logDenied("refund_many", "", txErr)
		ok, err := resolveDenial(txErr, strict)
		return nil, ok, err
	}
	return result, true, nil
}

// SetUsage overwrites the counter for the feature's current period
func (r *Reader) SetUsage(ctx context.Context, key string, value int64) (int64, error) {
	ent, err := r.entitled(ctx, key)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, entitlement.ErrInvalidAmount
	}
	return r.limiter.usage.SetUsed(ctx, r.subject, &ent.Feature, r.limiter.now(), value)
}

// ClearUsage deletes the counter for the feature's current period, leaving
// other periods untouched
func (r *Reader) ClearUsage(ctx context.Context, key string) error {
	ent, err := r.entitled(ctx, key)
	if err != nil {
		return err
	}
	return r.limiter.usage.Clear(ctx, r.subject, &ent.Feature, r.limiter.now())
}

// UsageSummary returns every usage row recorded for the subject
func (r *Reader) UsageSummary(ctx context.Context) ([]entitlement.FeatureUsage, error) {
	return r.limiter.usage.Summary(ctx, r.subject)
}

func (r *Reader) entitled(ctx context.Context, key string) (*entitlement.Entitlement, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	ent := plan.Entitlement(key)
	if ent == nil {
		return nil, notEntitledErr(key)
	}
	return ent, nil
}

// batchEntry is one aggregated feature of a batch operation
type batchEntry struct {
	ent    *entitlement.Entitlement
	amount entitlement.Amount // as supplied, for error reporting
	delta  int64              // aggregated parsed amount, metered types only
}

// requested renders the aggregated delta in the feature's unit
func (e *batchEntry) requested() entitlement.Amount {
	if e.ent.Feature.Type == entitlement.FeatureTypeStorage {
		return entitlement.Size(entitlement.FromBytes(e.delta))
	}
	return entitlement.Count(e.delta)
}

// normalize resolves a batch against the plan: zero amounts are dropped,
// duplicate metered keys sum their deltas, duplicate boolean keys collapse.
// A missing feature or unparseable amount aborts with a denial before any
// transaction is opened.
func (r *Reader) normalize(ctx context.Context, entries []Consumption) ([]batchEntry, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]batchEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, entry := range entries {
		if entry.Amount.IsZero() {
			continue
		}
		ent := plan.Entitlement(entry.Key)
		if ent == nil {
			return nil, notEntitled(entry.Key)
		}
		if ent.Feature.Type == entitlement.FeatureTypeBoolean {
			if _, ok := index[entry.Key]; ok {
				continue
			}
			index[entry.Key] = len(out)
			out = append(out, batchEntry{ent: ent, amount: entry.Amount})
			continue
		}
		delta, derr := entry.Amount.Delta(ent.Feature.Type)
		if derr != nil {
			return nil, &denial{err: NewQuotaExceededError(entry.Key, entry.Amount, entitlement.NoQuota())}
		}
		if i, ok := index[entry.Key]; ok {
			out[i].delta += delta
			continue
		}
		index[entry.Key] = len(out)
		out = append(out, batchEntry{ent: ent, amount: entry.Amount, delta: delta})
	}
	return out, nil
}

// denial is the single failure channel shared by quota exhaustion, invalid
// amounts and missing features. Returning one from a transaction closure
// rolls the transaction back; resolveDenial then maps it to a false return
// (non-strict) or the underlying error (strict).
type denial struct {
	err error
}

func (d *denial) Error() string { return d.err.Error() }

func (d *denial) Unwrap() error { return d.err }

func notEntitled(key string) *denial {
	return &denial{err: notEntitledErr(key)}
}

func notEntitledErr(key string) error {
	return fmt.Errorf("feature %q: %w", key, entitlement.ErrFeatureNotFound)
}

func resolveDenial(err error, strict bool) (bool, error) {
	if err == nil {
		return true, nil
	}
	var d *denial
	if errors.As(err, &d) {
		if strict {
			return false, d.err
		}
		return false, nil
	}
	return false, err
}

func boundedQuota(bytes bool, limit int64) entitlement.Quota {
	if bytes {
		return entitlement.ByteQuota(limit)
	}
	return entitlement.CountQuota(limit)
}

func (r *Reader) logDenied(op, key string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("subject", r.subject.String()),
	}
	if key != "" {
		fields = append(fields, zap.String("feature", key))
	}
	var d *denial
	if errors.As(err, &d) {
		r.limiter.logger.Debug("Quota denied", append(fields, zap.Error(d.err))...)
		return
	}
	r.limiter.logger.Error("Ledger operation failed", append(fields, zap.Error(err))...)
}
