package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/infrastructure/config"
	"github.com/featuregate/backend/internal/infrastructure/logger"
	"github.com/featuregate/backend/internal/infrastructure/persistence"
)

func main() {
	// Parse flags
	var (
		days      int
		months    int
		years     int
		zeroUsage bool
		dryRun    bool
		logLevel  string
	)

	flag.IntVar(&days, "days", 0, "Remove usage rows whose period ended more than N days ago")
	flag.IntVar(&months, "months", 0, "Remove usage rows whose period ended more than N months ago")
	flag.IntVar(&years, "years", 0, "Remove usage rows whose period ended more than N years ago")
	flag.BoolVar(&zeroUsage, "zero-usage", false, "Also remove zero-valued usage rows regardless of age")
	flag.BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Fall back to the configured retention policy when no horizon flag is set
	if days == 0 && months == 0 && years == 0 {
		days = cfg.Retention.Days
		months = cfg.Retention.Months
		years = cfg.Retention.Years
		if !zeroUsage {
			zeroUsage = cfg.Retention.ZeroUsage
		}
	}

	// Connect to the database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	usageRepo := persistence.NewUsageRepository(db.DB)
	pruneService := appentitlement.NewPruneService(usageRepo, log)

	opts := appentitlement.PruneOptions{
		Days:      days,
		Months:    months,
		Years:     years,
		ZeroUsage: zeroUsage,
		DryRun:    dryRun,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := pruneService.Run(ctx, opts)
	if err != nil {
		log.Fatal("Usage prune failed", zap.Error(err))
	}

	if result.DryRun {
		log.Info("Dry run: no rows deleted",
			zap.Time("cutoff", result.Cutoff),
			zap.Int64("matched", result.Matched))
		return
	}
	log.Info("Usage prune finished",
		zap.Time("cutoff", result.Cutoff),
		zap.Int64("matched", result.Matched),
		zap.Int64("deleted", result.Deleted))
}

func printUsage() {
	fmt.Println(`FeatureGate Usage Retention Tool

Removes usage ledger rows whose tracking period ended before the retention
cutoff. With no horizon flags the retention policy from config.toml applies;
with none configured the cutoff defaults to one year.

Usage:
  prune [flags]

Flags:
  -days N        Remove rows whose period ended more than N days ago
  -months N      Remove rows whose period ended more than N months ago
  -years N       Remove rows whose period ended more than N years ago
  -zero-usage    Also remove zero-valued rows regardless of age
  -dry-run       Report what would be removed without deleting
  -log-level     Log level: debug, info, warn, error (default: info)

Examples:
  prune -dry-run                     # preview the configured policy
  prune -months 6                    # drop rows older than six months
  prune -days 90 -zero-usage         # 90 day horizon plus zero counters

Environment variables (override config.toml):
  FEATUREGATE_DATABASE_HOST, FEATUREGATE_DATABASE_PORT,
  FEATUREGATE_DATABASE_USER, FEATUREGATE_DATABASE_PASSWORD,
  FEATUREGATE_DATABASE_DBNAME, FEATUREGATE_DATABASE_SSLMODE`)
}
