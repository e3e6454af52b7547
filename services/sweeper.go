package services

import (
	"context"
	"log"
	"time"

	"dancebattlez/config"
	"dancebattlez/models"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically finalizes matches whose voting window has closed
// and replays any finalized match with unsettled counters.
type Sweeper struct {
	matches MatchStore
	tally   *TallyService
	sched   gocron.Scheduler
}

func NewSweeper(matches MatchStore, tally *TallyService) *Sweeper {
	return &Sweeper{matches: matches, tally: tally}
}

// Start schedules the sweep at the configured interval and runs the
// scheduler in the background.
func (s *Sweeper) Start(cfg *config.Config) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	interval := time.Duration(cfg.Battle.SweepIntervalSeconds) * time.Second
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.Sweep(context.Background())
		}),
	)
	if err != nil {
		return err
	}
	s.sched = sched
	sched.Start()
	log.Printf("sweeper: running every %s", interval)
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() {
	if s.sched != nil {
		if err := s.sched.Shutdown(); err != nil {
			log.Printf("sweeper: shutdown: %v", err)
		}
	}
}

// Sweep runs one pass. Errors on individual matches are logged and the
// pass continues; the next tick retries them.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().Unix()
	err := s.matches.DueForFinalization(ctx, now, func(m *models.Match) error {
		if err := s.tally.Finalize(ctx, m.MatchID, false); err != nil {
			log.Printf("sweeper: finalize %s: %v", m.MatchID, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("sweeper: scan due matches: %v", err)
	}

	err = s.matches.UnsettledTallies(ctx, func(m *models.Match) error {
		if err := s.tally.Finalize(ctx, m.MatchID, false); err != nil {
			log.Printf("sweeper: settle %s: %v", m.MatchID, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("sweeper: scan unsettled tallies: %v", err)
	}
}
