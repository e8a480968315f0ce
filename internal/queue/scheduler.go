package queue

import (
	"context"
	"log"
	"time"
)

// Periodic trigger intervals for the scheduled tasks.
const (
	TrendingRefreshEvery = time.Hour
	CacheCleanupEvery    = 24 * time.Hour
	WeeklyDigestEvery    = 7 * 24 * time.Hour
	AnalyticsEvery       = 12 * time.Hour
)

// Scheduler enqueues the periodic tasks on fixed intervals.  It is a thin
// ticker loop, not a cron engine: intervals are measured from process start
// and nothing is persisted across restarts.
type Scheduler struct {
	pub *Publisher
}

func NewScheduler(pub *Publisher) *Scheduler { return &Scheduler{pub: pub} }

// Run blocks until ctx is cancelled, firing each periodic task on its
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	trending := time.NewTicker(TrendingRefreshEvery)
	cleanup := time.NewTicker(CacheCleanupEvery)
	weekly := time.NewTicker(WeeklyDigestEvery)
	reports := time.NewTicker(AnalyticsEvery)
	defer trending.Stop()
	defer cleanup.Stop()
	defer weekly.Stop()
	defer reports.Stop()

	log.Printf("scheduler: started (trending %s, cleanup %s, weekly %s, reports %s)",
		TrendingRefreshEvery, CacheCleanupEvery, WeeklyDigestEvery, AnalyticsEvery)

	for {
		select {
		case <-ctx.Done():
			return
		case <-trending.C:
			s.fire(ctx, TaskRefreshTrendingCache)
		case <-cleanup.C:
			s.fire(ctx, TaskCleanupOldCache)
		case <-weekly.C:
			s.fire(ctx, TaskSendWeeklyRecommendations)
		case <-reports.C:
			s.fire(ctx, TaskGenerateAnalyticsReport)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, task string) {
	if err := s.pub.Enqueue(ctx, task, nil); err != nil {
		log.Printf("scheduler: enqueue %s failed: %v", task, err)
	}
}
