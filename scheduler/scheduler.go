package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"propsyncd/config"
	"propsyncd/models"
)

// Starter is the sync trigger the scheduler fires. A tick that lands while
// a pass is already running is a no-op.
type Starter interface {
	Start(ctx context.Context) error
}

type Scheduler struct {
	cfg     *config.Config
	starter Starter
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
}

func New(cfg *config.Config, starter Starter) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		starter: starter,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.trigger(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.trigger(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	log.Println("Scheduler disabled: no cron expression or interval configured")
	return nil
}

func (s *Scheduler) trigger(ctx context.Context) {
	err := s.starter.Start(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, models.ErrAlreadyRunning) {
		log.Println("Scheduled sync skipped: previous pass still running")
		return
	}
	log.Printf("Scheduled sync error: %v", err)
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}
