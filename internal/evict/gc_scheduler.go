package evict

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// GCScheduler periodically runs Store.GC on a cron schedule. Adapted from
// internal/trigger/scheduler.go's cron wiring.
type GCScheduler struct {
	cron   *cron.Cron
	store  *Store
	maxAge time.Duration
}

// NewGCScheduler creates a scheduler that evicts files older than maxAge.
// cronExpr uses the standard 5-field format (no seconds field).
func NewGCScheduler(store *Store, maxAge time.Duration) *GCScheduler {
	return &GCScheduler{cron: cron.New(), store: store, maxAge: maxAge}
}

// Register adds the GC job at the given cron expression.
func (s *GCScheduler) Register(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := s.store.GC(ctx, s.maxAge)
		if err != nil {
			log.Error().Err(err).Msg("eviction_gc_failed")
			return
		}
		log.Info().Int("removed", removed).Msg("eviction_gc_completed")
	})
	return err
}

// Start begins running registered jobs.
func (s *GCScheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for in-flight jobs to finish.
func (s *GCScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
