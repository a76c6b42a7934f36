package cache

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// sweepSchedule is how often segment indexes are rebuilt from live entries.
// Badger expires entries itself; the rebuild only prunes stale graph nodes.
const sweepSchedule = "@every 5m"

// Sweeper periodically rebuilds the semantic cache's segment indexes so
// expired entries stop matching similarity lookups.
type Sweeper struct {
	cache  *SemanticCache
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper creates the sweeper. Start must be called to begin sweeping.
func NewSweeper(cache *SemanticCache, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cache:  cache,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the periodic rebuild and runs one immediately so the
// indexes reflect any entries persisted by a previous process.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(sweepSchedule, s.cache.RebuildSegments); err != nil {
		return err
	}
	s.cache.RebuildSegments()
	s.cron.Start()
	s.logger.Debug("cache sweeper started", slog.String("schedule", sweepSchedule))
	return nil
}

// Stop halts scheduled sweeps. In-flight rebuilds complete.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
