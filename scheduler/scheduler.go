// Package scheduler loads the dataset into the search host and keeps it fresh.
// Each reload sends a fresh INIT, so the host rebuilds its index from scratch,
// and invalidates cached search results.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
)

const (
	DefaultSchedule = "06:00;18:00"

	loadTimeout         = 10 * time.Minute
	healthCheckInterval = 1 * time.Hour
	staleDataThreshold  = 25 * time.Hour
	purgeInterval       = 1 * time.Hour
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Purger drops expired entries from a persistent cache tier
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSchedule sets the reload times, gocron At syntax ("06:00;18:00")
func WithSchedule(schedule string) Option {
	return func(s *Scheduler) {
		if schedule != "" {
			s.schedule = schedule
		}
	}
}

// WithCache invalidates c after every successful load
func WithCache(c interfaces.Cache) Option {
	return func(s *Scheduler) {
		s.cache = c
	}
}

// WithPurger purges expired persistent cache entries every hour
func WithPurger(p Purger) Option {
	return func(s *Scheduler) {
		s.purger = p
	}
}

// Scheduler handles dataset reloads and staleness monitoring
type Scheduler struct {
	dataStore interfaces.DataStore
	loader    interfaces.DatasetLoader
	searcher  interfaces.SearchService
	validator interfaces.DataValidator
	cache     interfaces.Cache
	purger    Purger
	schedule  string

	scheduler *gocron.Scheduler
	purgeJob  *gocron.Job
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(
	dataStore interfaces.DataStore,
	loader interfaces.DatasetLoader,
	searcher interfaces.SearchService,
	validator interfaces.DataValidator,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		dataStore: dataStore,
		loader:    loader,
		searcher:  searcher,
		validator: validator,
		schedule:  DefaultSchedule,
		scheduler: gocron.NewScheduler(time.Local),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule returns the configured reload times
func (s *Scheduler) Schedule() string {
	return s.schedule
}

// Start performs the initial load, then schedules reloads and health monitoring
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(s.schedule).Do(func() {
		if err := s.updateData(); err != nil {
			logging.Error("Failed to update data", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "schedule", s.schedule, "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	if s.purger != nil {
		job, err := s.scheduler.Every(purgeInterval).Do(s.purgeExpired)
		if err != nil {
			return fmt.Errorf("failed to schedule cache purge: %w", err)
		}
		s.purgeJob = job
	}

	s.scheduler.StartAsync()

	s.startHealthMonitoring()

	return nil
}

// Stop stops the scheduler and the health monitor
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.scheduler.Stop()
	})
}

// updateData loads the dataset and hands it to the search host
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	logging.Info("Starting dataset update", "source", s.loader.Source())
	start := time.Now()

	records, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	report := s.validator.ReportDataQuality(records)

	result, err := s.searcher.Init(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to initialize search host: %w", err)
	}

	s.dataStore.RecordLoad(interfaces.LoadInfo{
		Source:     s.loader.Source(),
		Records:    result.Count,
		Duplicates: result.Duplicates,
		Duration:   time.Since(start),
		Report:     report,
	})

	if s.cache != nil {
		s.cache.Clear(ctx)
	}

	logging.Info("Dataset update completed",
		"duration", time.Since(start).String(),
		"records", result.Count,
		"duplicates", result.Duplicates,
	)

	return nil
}

func (s *Scheduler) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.purger.PurgeExpired(ctx, time.Now())
	if err != nil {
		logging.Warn("Failed to purge expired cache entries", "error", err)
		return
	}
	if removed > 0 {
		logging.Debug("Purged expired cache entries", "removed", removed)
	}
}

// startHealthMonitoring monitors the health of the data updates
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.checkFreshness(now)
			}
		}
	}()
}

// checkFreshness warns when the data is older than staleDataThreshold
func (s *Scheduler) checkFreshness(now time.Time) bool {
	lastUpdate := s.dataStore.GetLastUpdated()
	if now.Sub(lastUpdate) > staleDataThreshold {
		logging.Warn("Data hasn't been updated in over 25 hours", "last_updated", lastUpdate)
		return false
	}
	return true
}
