package job

import (
	"time"

	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically evicts terminal jobs older than the configured TTL
// so the in-memory store cannot grow without bound.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	schedule string
	log      logger.Logger
	cron     *cron.Cron
}

// NewSweeper builds a sweeper over the store. The schedule uses cron syntax
// and accepts the @every shorthand.
func NewSweeper(store *Store, ttl time.Duration, schedule string, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		schedule: schedule,
		log:      log,
	}
}

// Start registers the sweep and begins the scheduler. A TTL of zero
// disables sweeping entirely.
func (s *Sweeper) Start() error {
	if s.ttl <= 0 {
		s.log.Info("job sweeper disabled, jobs are kept for the process lifetime")
		return nil
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("job sweeper started", "ttl", s.ttl, "schedule", s.schedule)
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	if evicted := s.store.EvictTerminalBefore(cutoff); evicted > 0 {
		s.log.Info("evicted expired jobs", "count", evicted, "ttl", s.ttl)
	}
}
