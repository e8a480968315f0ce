// Package queue defines the task envelope, the per-task dispatch table and
// the RabbitMQ publisher/consumer machinery behind background work.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task names.  These are the routing identity of a unit of deferred work;
// the worker resolves them against its handler registry.
const (
	TaskRefreshTrendingCache      = "refresh_trending_cache"
	TaskCleanupOldCache           = "cleanup_old_cache"
	TaskSendWeeklyRecommendations = "send_weekly_recommendations"
	TaskFetchMovieDetails         = "fetch_movie_details"
	TaskSendFavoriteNotification  = "send_favorite_notification"
	TaskGenerateAnalyticsReport   = "generate_analytics_report"
	TaskBulkCachePopularMovies    = "bulk_cache_popular_movies"
)

// Queue names.  Queues are declared durable with per-message priority
// support; higher priority is preferred within a queue but no strict
// ordering is guaranteed.
const (
	QueueCache   = "cache"
	QueueEmails  = "emails"
	QueueAPI     = "api"
	QueueReports = "reports"
)

// Spec fixes a task's routing and retry policy: target queue, message
// priority, maximum retry count and the fixed delay before each retry.
// Retries use the fixed delay as-is, with no exponential backoff.
type Spec struct {
	Queue      string
	Priority   uint8
	MaxRetries int
	RetryDelay time.Duration
}

// Specs is the dispatch table for every known task.
var Specs = map[string]Spec{
	TaskRefreshTrendingCache:      {Queue: QueueCache, Priority: 7, MaxRetries: 3, RetryDelay: 300 * time.Second},
	TaskCleanupOldCache:           {Queue: QueueCache, Priority: 5, MaxRetries: 2, RetryDelay: 600 * time.Second},
	TaskSendWeeklyRecommendations: {Queue: QueueEmails, Priority: 6, MaxRetries: 2, RetryDelay: 1800 * time.Second},
	TaskFetchMovieDetails:         {Queue: QueueAPI, Priority: 6, MaxRetries: 3, RetryDelay: 120 * time.Second},
	TaskSendFavoriteNotification:  {Queue: QueueEmails, Priority: 9, MaxRetries: 3, RetryDelay: 60 * time.Second},
	TaskGenerateAnalyticsReport:   {Queue: QueueReports, Priority: 4, MaxRetries: 2, RetryDelay: 600 * time.Second},
	TaskBulkCachePopularMovies:    {Queue: QueueAPI, Priority: 5, MaxRetries: 2, RetryDelay: 300 * time.Second},
}

// RetryQueue names the delay queue this task's retries park in.  Each
// distinct (queue, delay) pair gets its own retry queue: RabbitMQ only
// expires the message at the head of a queue, so mixing delays in one
// shared retry queue would hold short retries behind long ones.
func (s Spec) RetryQueue() string {
	return fmt.Sprintf("%s.retry.%ds", s.Queue, int(s.RetryDelay/time.Second))
}

// RetryQueues maps each distinct retry queue name to the work queue its
// messages dead-letter back into.
func RetryQueues() map[string]string {
	out := map[string]string{}
	for _, s := range Specs {
		out[s.RetryQueue()] = s.Queue
	}
	return out
}

// QueueNames returns the distinct work queue names from the dispatch table.
func QueueNames() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range Specs {
		if !seen[s.Queue] {
			seen[s.Queue] = true
			out = append(out, s.Queue)
		}
	}
	return out
}

// Envelope is the wire form of a deferred task.  Retries counts how many
// times the task has already failed; the broker keeps no other state about
// it.
type Envelope struct {
	ID         string          `json:"id"`
	Task       string          `json:"task"`
	Args       json.RawMessage `json:"args,omitempty"`
	Retries    int             `json:"retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Task argument payloads.

// FetchDetailsArgs asks the worker to fetch and cache one movie's details.
type FetchDetailsArgs struct {
	MovieID int `json:"movie_id"`
}

// FavoriteNotificationArgs asks the worker to email a user about a favorite
// they just added.
type FavoriteNotificationArgs struct {
	UserID     uint64 `json:"user_id"`
	MovieTitle string `json:"movie_title"`
}

// BulkCacheArgs asks the worker to prefetch details for a batch of movies.
type BulkCacheArgs struct {
	MovieIDs []int `json:"movie_ids"`
}
