// Package scheduler owns the background tickers: monthly invoice
// generation and the periodic router auto-sync. The overdue sweep runs on
// its own loop inside the billing checker.
package scheduler

import (
	"time"

	"go-netbill/internal/handlers"

	"github.com/rs/zerolog"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	handler      *handlers.Handler
	syncInterval time.Duration
	log          zerolog.Logger
	stop         chan struct{}
}

// New creates a new Scheduler
func New(h *handlers.Handler, syncInterval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		handler:      h,
		syncInterval: syncInterval,
		log:          log.With().Str("component", "scheduler").Logger(),
		stop:         make(chan struct{}),
	}
}

// Start launches the background tickers
func (s *Scheduler) Start() {
	// Daily tasks. The ticker fires twice a day so a restart around
	// midnight cannot skip the day-1 invoice run entirely.
	daily := time.NewTicker(12 * time.Hour)
	go func() {
		defer daily.Stop()
		for {
			select {
			case <-daily.C:
				s.runDailyTasks()
			case <-s.stop:
				return
			}
		}
	}()

	syncTicker := time.NewTicker(s.syncInterval)
	go func() {
		defer syncTicker.Stop()
		for {
			select {
			case <-syncTicker.C:
				s.log.Debug().Msg("running router auto-sync")
				s.handler.AutoSync()
			case <-s.stop:
				return
			}
		}
	}()

	s.log.Info().Dur("sync_interval", s.syncInterval).Msg("scheduler started")
}

// Stop shuts down the tickers
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) runDailyTasks() {
	// Invoice generation runs on the 1st day of the month
	if time.Now().Day() != 1 {
		return
	}

	s.log.Info().Msg("running monthly invoice generation")
	count, err := s.handler.GenerateInvoicesInternal()
	if err != nil {
		s.log.Error().Err(err).Msg("invoice generation failed")
		return
	}
	s.log.Info().Int("generated", count).Msg("invoice generation complete")
}
