// Command simulate drives concurrent call-center users through the services to
// exercise write contention on the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/relance-engine/internal/config"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/infra/database"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/roster"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const definitiveShare = 0.7

var (
	nonDefinitiveResults = []domain.Result{domain.ResultNoAnswer, domain.ResultUnreachable, domain.ResultCallBack}
	definitiveResults    = []domain.Result{domain.ResultQualified, domain.ResultNotInterested, domain.ResultCancelled}
	followUpDelays       = []time.Duration{30 * time.Minute, 60 * time.Minute, 120 * time.Minute}
)

type simulation struct {
	leads     *service.LeadService
	followUps *service.FollowUpService
	roster    *roster.Roster
	clock     *temporal.Clock
	logger    *zap.Logger
	leadsPer  int
	pause     time.Duration
}

func main() {
	users := flag.Int("users", 20, "number of concurrent users")
	leadsPerUser := flag.Int("leads", 5, "leads created by each user")
	seed := flag.Int64("seed", 0, "random seed, 0 uses the current time")
	pause := flag.Duration("pause", 150*time.Millisecond, "maximum think time between two calls")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("simulate", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	if err := run(ctx, cfg, logger, *users, *leadsPerUser, *seed, *pause); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, users, leadsPerUser int, seed int64, pause time.Duration) error {
	clock, err := temporal.LoadClock(cfg.Timezone)
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

	busy := repository.WithBusyRetry(repository.BusyRetry{
		Attempts: cfg.StoreBusyRetries,
		Backoff:  cfg.StoreBusyBackoff,
	})
	leadRepo := repository.NewGormLeadRepo(db, busy)
	callRepo := repository.NewGormCallRepo(db, busy)

	leads, err := service.NewLeadService(leadRepo, callRepo, nil, clock, logger)
	if err != nil {
		return err
	}
	followUps, err := service.NewFollowUpService(callRepo, nil, nil, logger)
	if err != nil {
		return err
	}
	dashboard, err := service.NewDashboardService(leadRepo, nil, clock, logger)
	if err != nil {
		return err
	}

	sim := &simulation{
		leads:     leads,
		followUps: followUps,
		roster:    agents,
		clock:     clock,
		logger:    logger,
		leadsPer:  leadsPerUser,
		pause:     pause,
	}

	logger.Info("simulation started",
		zap.Int("users", users),
		zap.Int("leadsPerUser", leadsPerUser),
		zap.Int64("seed", seed),
	)
	start := time.Now()

	g, groupCtx := errgroup.WithContext(ctx)
	for user := 1; user <= users; user++ {
		rng := rand.New(rand.NewSource(seed + int64(user)))
		g.Go(func() error {
			return sim.runUser(groupCtx, user, rng)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	summary, err := dashboard.GetDashboard(ctx, domain.LeadFilter{})
	if err != nil {
		return err
	}
	logger.Info("simulation finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("leads", summary.LeadsTotal),
		zap.Int("calls", summary.CallsTotal),
		zap.Float64("combativity", summary.Combativity),
	)
	return nil
}

// runUser works leadsPer fresh leads: one to four unanswered calls, then either a
// definitive outcome or a planned P1 follow-up.
func (s *simulation) runUser(ctx context.Context, user int, rng *rand.Rand) error {
	for i := 0; i < s.leadsPer; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		project, leadType, agent := s.roster.Pick(rng)
		lead, _, err := s.leads.CreateLead(ctx, service.CreateLeadInput{
			LeadKey:       fmt.Sprintf("U%d-LEAD-%d-%s", user, i, uuid.NewString()),
			Project:       project,
			LeadType:      leadType,
			LeadCreatedAt: s.clock.Now().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("user %d: create lead: %w", user, err)
		}

		phone := fmt.Sprintf("336%08d", rng.Intn(100_000_000))
		calls := 1 + rng.Intn(4)
		for level := 1; level <= calls; level++ {
			if _, err := s.followUps.RecordCall(ctx, domain.RecordCall{
				LeadID:       lead.ID,
				Phone:        phone,
				Agent:        agent,
				AttemptLevel: level,
				Result:       nonDefinitiveResults[rng.Intn(len(nonDefinitiveResults))],
				Priority:     domain.PriorityNormal,
			}); err != nil {
				return fmt.Errorf("user %d: record call: %w", user, err)
			}
			s.think(ctx, rng)
		}

		if rng.Float64() < definitiveShare {
			_, err = s.followUps.RecordCall(ctx, domain.RecordCall{
				LeadID:       lead.ID,
				Phone:        phone,
				Agent:        agent,
				AttemptLevel: calls + 1,
				Result:       definitiveResults[rng.Intn(len(definitiveResults))],
				Priority:     domain.PriorityNormal,
			})
		} else {
			_, err = s.followUps.ScheduleFollowUp(ctx, domain.ScheduleFollowUp{
				LeadID:       lead.ID,
				Agent:        agent,
				AttemptLevel: calls + 1,
				Priority:     domain.PriorityP1,
				At:           s.clock.Now().Add(followUpDelays[rng.Intn(len(followUpDelays))]),
			})
		}
		if err != nil {
			return fmt.Errorf("user %d: close lead: %w", user, err)
		}
	}

	s.logger.Debug("user finished", zap.Int("user", user))
	return nil
}

func (s *simulation) think(ctx context.Context, rng *rand.Rand) {
	if s.pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(rng.Int63n(int64(s.pause)))):
	}
}
