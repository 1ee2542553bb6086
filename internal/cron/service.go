// Package cron runs the scheduled maintenance of the assistant's stores,
// currently the conversation-context retention sweep.
package cron

import (
	"context"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/arthmitra/arthmitra/internal/config"
)

// Sweeper clears conversation context rows idle since before cutoff and
// reports how many users were swept.
type Sweeper interface {
	ClearStaleContexts(ctx context.Context, cutoff time.Time) (int, error)
}

// Service schedules the retention sweep. Schedule expressions include a
// seconds field.
type Service struct {
	cfg     config.RetentionConfig
	sweeper Sweeper
	log     zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	cron *rcron.Cron
}

func NewService(cfg config.RetentionConfig, sweeper Sweeper, log zerolog.Logger) *Service {
	return &Service{cfg: cfg, sweeper: sweeper, log: log, now: time.Now}
}

// Start registers the sweep with the scheduler. A disabled config is a no-op;
// a malformed schedule expression is an error.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	c := rcron.New(rcron.WithSeconds())
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.RunSweep(ctx) }); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.log.Info().Str("schedule", s.cfg.Schedule).Int("max_idle_days", s.cfg.MaxIdleDays).
		Msg("retention sweep scheduled")
	return nil
}

// RunSweep executes one sweep immediately. A failed sweep is logged and
// retried at the next scheduled run.
func (s *Service) RunSweep(ctx context.Context) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.MaxIdleDays)
	swept, err := s.sweeper.ClearStaleContexts(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	s.log.Info().Int("users", swept).Time("cutoff", cutoff).Msg("retention sweep done")
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("retention stop timeout waiting for running sweep")
	}
}
