package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	seedNonDefinitive = []domain.Result{domain.ResultNoAnswer, domain.ResultUnreachable, domain.ResultCallBack}
	seedDefinitive    = []domain.Result{domain.ResultQualified, domain.ResultNotInterested, domain.ResultCancelled}
	seedDelays        = []time.Duration{30 * time.Minute, 60 * time.Minute, 120 * time.Minute}
	seedProjects      = []string{"Nohée", "Colisée"}
)

// seeder writes a reproducible book of leads. Every write is stamped with the
// time held in now, so call dates can be placed in the past.
type seeder struct {
	leads     *service.LeadService
	followUps *service.FollowUpService
	agents    []string
	now       *time.Time
}

type seedReport struct {
	Leads     int
	Skipped   int
	Calls     int
	FollowUps int
}

// run seeds count leads around base, the reference afternoon:
//   - leads 1 and 2 are closed by a definitive first call 20 minutes after creation;
//   - leads 3 to 6 take three to five calls, the last one definitive;
//   - every other lead has one to three unanswered calls and a planned follow-up,
//     P1 for every third lead.
func (s *seeder) run(ctx context.Context, base time.Time, count int) (seedReport, error) {
	var report seedReport
	for i := 1; i <= count; i++ {
		created := base.Add(-4 * time.Hour).Add(-time.Duration(i) * 10 * time.Minute)
		*s.now = base

		lead, isNew, err := s.leads.CreateLead(ctx, service.CreateLeadInput{
			LeadKey:       fmt.Sprintf("FAKE-LEAD-%d", i),
			Project:       seedProjects[i%len(seedProjects)],
			LeadType:      "Web",
			LeadCreatedAt: created.Format(time.RFC3339),
		})
		if err != nil {
			return report, fmt.Errorf("lead %d: %w", i, err)
		}
		if !isNew {
			report.Skipped++
			continue
		}
		report.Leads++

		agent := s.agents[i%len(s.agents)]
		phone := fmt.Sprintf("336%08d", i)

		switch {
		case i <= 2:
			if err := s.call(ctx, lead.ID, agent, phone, 1, seedDefinitive[i%len(seedDefinitive)], created.Add(20*time.Minute)); err != nil {
				return report, err
			}
			report.Calls++

		case i <= 6:
			calls := 3 + i%3
			at := created.Add(15 * time.Minute)
			for level := 1; level < calls; level++ {
				if err := s.call(ctx, lead.ID, agent, phone, level, seedNonDefinitive[level%len(seedNonDefinitive)], at); err != nil {
					return report, err
				}
				at = at.Add(20 * time.Minute)
			}
			if err := s.call(ctx, lead.ID, agent, phone, calls, seedDefinitive[i%len(seedDefinitive)], at); err != nil {
				return report, err
			}
			report.Calls += calls

		default:
			calls := 1 + i%3
			at := created.Add(15 * time.Minute)
			for level := 1; level <= calls; level++ {
				if err := s.call(ctx, lead.ID, agent, phone, level, seedNonDefinitive[(i+level)%len(seedNonDefinitive)], at); err != nil {
					return report, err
				}
				at = at.Add(20 * time.Minute)
			}
			report.Calls += calls

			priority := domain.PriorityNormal
			if i%3 == 0 {
				priority = domain.PriorityP1
			}
			*s.now = base
			if _, err := s.followUps.ScheduleFollowUp(ctx, domain.ScheduleFollowUp{
				LeadID:       lead.ID,
				Agent:        agent,
				AttemptLevel: calls + 1,
				Priority:     priority,
				At:           base.Add(seedDelays[i%len(seedDelays)]),
			}); err != nil {
				return report, fmt.Errorf("lead %d: schedule follow-up: %w", i, err)
			}
			report.FollowUps++
		}
	}
	return report, nil
}

func (s *seeder) call(ctx context.Context, leadID int64, agent, phone string, level int, result domain.Result, at time.Time) error {
	*s.now = at
	_, err := s.followUps.RecordCall(ctx, domain.RecordCall{
		LeadID:       leadID,
		Phone:        phone,
		Agent:        agent,
		AttemptLevel: level,
		Result:       result,
		Priority:     domain.PriorityNormal,
	})
	if err != nil {
		return fmt.Errorf("lead %d: record call: %w", leadID, err)
	}
	return nil
}

func newSeeder(db *gorm.DB, clock *temporal.Clock, agents []string, logger *zap.Logger) (*seeder, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("roster has no agents")
	}

	s := &seeder{agents: agents, now: new(time.Time)}
	withNow := repository.WithNow(func() time.Time { return *s.now })
	leadRepo := repository.NewGormLeadRepo(db, withNow)
	callRepo := repository.NewGormCallRepo(db, withNow)

	leads, err := service.NewLeadService(leadRepo, callRepo, nil, clock, logger)
	if err != nil {
		return nil, err
	}
	followUps, err := service.NewFollowUpService(callRepo, nil, nil, logger)
	if err != nil {
		return nil, err
	}

	s.leads = leads
	s.followUps = followUps
	return s, nil
}
