package entitlement

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"go.uber.org/zap"
)

// PruneOptions controls the retention sweep over the usage ledger. Days,
// months and years each describe a retention horizon counted back from now;
// when several are set the most recent resulting cutoff wins.
type PruneOptions struct {
	Days      int
	Months    int
	Years     int
	ZeroUsage bool // also remove zero-valued counters regardless of age
	DryRun    bool // report what would be removed without deleting
}

// PruneResult reports the outcome of a retention sweep
type PruneResult struct {
	Cutoff  time.Time
	Matched int64
	Deleted int64
	DryRun  bool
}

// PruneService removes usage rows whose period ended before a retention
// cutoff. It runs from a scheduler or the prune command, never from the
// consumption path.
type PruneService struct {
	usage  entitlement.UsageRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewPruneService creates a new prune service
func NewPruneService(usage entitlement.UsageRepository, logger *zap.Logger) *PruneService {
	return &PruneService{
		usage:  usage,
		logger: logger,
		now:    time.Now,
	}
}

// Cutoff computes the retention cutoff for the options. With no horizon set
// it defaults to one year.
func (s *PruneService) Cutoff(opts PruneOptions) time.Time {
	now := s.now()
	if opts.Days == 0 && opts.Months == 0 && opts.Years == 0 {
		return now.AddDate(-1, 0, 0)
	}
	cutoff := now.AddDate(-100, 0, 0)
	if opts.Days > 0 {
		if c := now.AddDate(0, 0, -opts.Days); c.After(cutoff) {
			cutoff = c
		}
	}
	if opts.Months > 0 {
		if c := now.AddDate(0, -opts.Months, 0); c.After(cutoff) {
			cutoff = c
		}
	}
	if opts.Years > 0 {
		if c := now.AddDate(-opts.Years, 0, 0); c.After(cutoff) {
			cutoff = c
		}
	}
	return cutoff
}

// Run executes the sweep. In dry-run mode it only counts the matching rows.
func (s *PruneService) Run(ctx context.Context, opts PruneOptions) (*PruneResult, error) {
	cutoff := s.Cutoff(opts)
	result := &PruneResult{Cutoff: cutoff, DryRun: opts.DryRun}

	matched, err := s.usage.CountExpired(ctx, cutoff, opts.ZeroUsage)
	if err != nil {
		s.logger.Error("Failed to count expired usage rows", zap.Error(err))
		return nil, err
	}
	result.Matched = matched

	if opts.DryRun {
		s.logger.Info("Usage prune dry run",
			zap.Time("cutoff", cutoff),
			zap.Int64("matched", matched),
			zap.Bool("zero_usage", opts.ZeroUsage))
		return result, nil
	}

	deleted, err := s.usage.DeleteExpired(ctx, cutoff, opts.ZeroUsage)
	if err != nil {
		s.logger.Error("Failed to delete expired usage rows", zap.Error(err))
		return nil, err
	}
	result.Deleted = deleted

	s.logger.Info("Usage prune completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
		zap.Bool("zero_usage", opts.ZeroUsage))
	return result, nil
}
