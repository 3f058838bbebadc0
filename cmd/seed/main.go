// Command seed fills the configured database with a reproducible set of leads
// covering closed, multi-call and in-progress situations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/config"
	"github.com/kursadbilgin/relance-engine/internal/infra/database"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/roster"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"go.uber.org/zap"
)

func main() {
	count := flag.Int("count", 30, "number of leads to seed")
	day := flag.String("date", "", "reference day as YYYY-MM-DD, defaults to today")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("seed", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(context.Background(), cfg, logger, *day, *count); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, day string, count int) error {
	clock, err := temporal.LoadClock(cfg.Timezone)
	if err != nil {
		return err
	}
	base, err := referenceAfternoon(clock, day)
	if err != nil {
		return err
	}
	agents, err := roster.Load(cfg.RosterFile)
	if err != nil {
		return err
	}

	db, err := database.OpenAndMigrate(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	s, err := newSeeder(db, clock, agents.Agents(), logger)
	if err != nil {
		return err
	}

	report, err := s.run(ctx, base, count)
	if err != nil {
		return err
	}

	logger.Info("seed finished",
		zap.String("reference", clock.FormatCivil(base)),
		zap.Int("leads", report.Leads),
		zap.Int("skipped", report.Skipped),
		zap.Int("calls", report.Calls),
		zap.Int("followUps", report.FollowUps),
	)
	return nil
}

// referenceAfternoon is 14:00 on day (or today) in the clock's timezone.
func referenceAfternoon(clock *temporal.Clock, day string) (time.Time, error) {
	if day == "" {
		day = clock.Now().In(clock.Location()).Format("2006-01-02")
	}
	return clock.ParseCivil(day + "T14:00")
}
