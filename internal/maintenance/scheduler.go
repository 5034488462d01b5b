// Package maintenance runs background wear-leveling on a cron schedule.
package maintenance

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/dshills/QuantaFTL/internal/ftl"
	"github.com/dshills/QuantaFTL/internal/log"
)

// Leveler is the part of the FTL the scheduler drives.
type Leveler interface {
	RunWearLevelingPass() ftl.PassReport
}

// Scheduler triggers wear-leveling passes on a schedule. Passes never
// overlap: a tick that fires while the previous pass is still running is
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	leveler Leveler
	logger  log.Logger

	mu      sync.Mutex
	running bool

	runs      atomic.Int64
	triggered atomic.Int64
}

// NewScheduler creates a scheduler running passes on leveler according to
// spec, a standard cron expression or descriptor such as "@every 1s".
func NewScheduler(spec string, leveler Leveler, logger log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		leveler: leveler,
		logger:  logger.With(log.String("component", "maintenance")),
	}

	if _, err := s.cron.AddFunc(spec, s.runPass); err != nil {
		return nil, fmt.Errorf("invalid wear-leveling schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled passes.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("wear-leveling scheduler started")
}

// Stop halts the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("wear-leveling scheduler stopped",
		log.Int64("runs", s.runs.Load()),
		log.Int64("triggered", s.triggered.Load()))
}

// Runs returns how many scheduled passes have run.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Triggered returns how many scheduled passes moved data.
func (s *Scheduler) Triggered() int64 {
	return s.triggered.Load()
}

func (s *Scheduler) runPass() {
	report := s.leveler.RunWearLevelingPass()
	s.runs.Add(1)
	if report.Triggered {
		s.triggered.Add(1)
	}
}
