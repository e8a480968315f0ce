// Package task implements the bodies of the background tasks.  Routing and
// retry policy live in the queue package's dispatch table; a body only
// decides success (nil) or failure (error) per attempt.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/movie-recommendation/internal/model"
	"github.com/iliyamo/movie-recommendation/internal/queue"
)

// trendingPages is how many pages the hourly refresh keeps warm.
const trendingPages = 3

// digestFavorites caps how many recent favorites go into the weekly digest.
const digestFavorites = 5

// movieStore is the slice of the cache layer the tasks use.
type movieStore interface {
	RefreshTrending(ctx context.Context, page int) error
	RefreshDetails(ctx context.Context, movieID int) (json.RawMessage, error)
	CleanupStale(ctx context.Context) (int, error)
	StoreReport(ctx context.Context, report any) error
}

// userStore provides the user lookups the email and report tasks need.
type userStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Count(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	ActiveWithFavorites(ctx context.Context) ([]model.User, error)
}

// favoriteStore provides the favorite aggregates for digests and reports.
type favoriteStore interface {
	RecentByUser(ctx context.Context, userID uint64, n int) ([]model.FavoriteMovie, error)
	Count(ctx context.Context) (int64, error)
	AverageRating(ctx context.Context) (float64, error)
	TopMovies(ctx context.Context, n int) ([]model.MovieCount, error)
	TopUsers(ctx context.Context, n int) ([]model.UserCount, error)
}

// sender delivers one plain-text mail.
type sender interface {
	Send(to, subject, body string) error
}

// Tasks bundles the dependencies shared by all task bodies.
type Tasks struct {
	Movies    movieStore
	Users     userStore
	Favorites favoriteStore
	Mailer    sender
}

func New(movies movieStore, users userStore, favorites favoriteStore, mailer sender) *Tasks {
	return &Tasks{Movies: movies, Users: users, Favorites: favorites, Mailer: mailer}
}

// Handlers returns the registry the worker dispatches on.
func (t *Tasks) Handlers() map[string]queue.Handler {
	return map[string]queue.Handler{
		queue.TaskRefreshTrendingCache:      t.RefreshTrendingCache,
		queue.TaskCleanupOldCache:           t.CleanupOldCache,
		queue.TaskSendWeeklyRecommendations: t.SendWeeklyRecommendations,
		queue.TaskFetchMovieDetails:         t.FetchMovieDetails,
		queue.TaskSendFavoriteNotification:  t.SendFavoriteNotification,
		queue.TaskGenerateAnalyticsReport:   t.GenerateAnalyticsReport,
		queue.TaskBulkCachePopularMovies:    t.BulkCachePopularMovies,
	}
}

// RefreshTrendingCache refetches the first pages of trending movies so the
// hot cache entries never go cold between user requests.
func (t *Tasks) RefreshTrendingCache(ctx context.Context, _ json.RawMessage) error {
	log.Printf("task: refreshing trending cache (%d pages)", trendingPages)
	for page := 1; page <= trendingPages; page++ {
		if err := t.Movies.RefreshTrending(ctx, page); err != nil {
			return fmt.Errorf("refresh trending page %d: %w", page, err)
		}
	}
	return nil
}

// CleanupOldCache removes expired and expiry-less keys from the application
// namespace.
func (t *Tasks) CleanupOldCache(ctx context.Context, _ json.RawMessage) error {
	removed, err := t.Movies.CleanupStale(ctx)
	if err != nil {
		return fmt.Errorf("cache cleanup: %w", err)
	}
	log.Printf("task: cache cleanup removed %d keys", removed)
	return nil
}

// SendWeeklyRecommendations mails each active user a digest of their five
// most recent favorites.  A failed send for one user is logged and skipped;
// it never aborts the batch, and the reported count covers only sends that
// did not fail.
func (t *Tasks) SendWeeklyRecommendations(ctx context.Context, _ json.RawMessage) error {
	users, err := t.Users.ActiveWithFavorites(ctx)
	if err != nil {
		return fmt.Errorf("weekly digest: list users: %w", err)
	}

	sent := 0
	for _, u := range users {
		favorites, err := t.Favorites.RecentByUser(ctx, u.ID, digestFavorites)
		if err != nil {
			log.Printf("task: weekly digest for %s: load favorites failed: %v", u.Username, err)
			continue
		}
		if len(favorites) == 0 {
			continue
		}
		subject := fmt.Sprintf("Your Weekly Movie Recommendations - %s", time.Now().Format("January 2, 2006"))
		if err := t.Mailer.Send(u.Email, subject, digestBody(u, favorites)); err != nil {
			log.Printf("task: weekly digest to %s failed: %v", u.Email, err)
			continue
		}
		sent++
	}
	log.Printf("task: weekly digest completed, %d emails sent", sent)
	return nil
}

func digestBody(u model.User, favorites []model.FavoriteMovie) string {
	body := fmt.Sprintf("Hi %s!\n\nBased on your favorite movies, here are your top picks this week:\n\n", u.Username)
	for _, f := range favorites {
		body += fmt.Sprintf("- %s (Rating: %.1f)\n", f.Title, f.VoteAverage)
	}
	body += "\nLog in to discover more movies you'll love!\n\nBest regards,\nMovie Recommendation Team\n"
	return body
}

// FetchMovieDetails prefetches one movie's detail document into the cache.
// Triggered after a favorite is added so the detail view is warm.
func (t *Tasks) FetchMovieDetails(ctx context.Context, raw json.RawMessage) error {
	var args queue.FetchDetailsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("fetch details: decode args: %w", err)
	}
	if _, err := t.Movies.RefreshDetails(ctx, args.MovieID); err != nil {
		return fmt.Errorf("fetch details for movie %d: %w", args.MovieID, err)
	}
	log.Printf("task: cached details for movie %d", args.MovieID)
	return nil
}

// SendFavoriteNotification emails a user that their favorite was recorded.
// A user without an email address is a skip, not a failure; retrying would
// never help.
func (t *Tasks) SendFavoriteNotification(ctx context.Context, raw json.RawMessage) error {
	var args queue.FavoriteNotificationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("favorite notification: decode args: %w", err)
	}

	u, err := t.Users.GetByID(ctx, args.UserID)
	if err != nil {
		return fmt.Errorf("favorite notification: load user %d: %w", args.UserID, err)
	}
	if u.Email == "" {
		log.Printf("task: user %s has no email address; skipping notification", u.Username)
		return nil
	}

	subject := fmt.Sprintf("Added to Favorites: %s", args.MovieTitle)
	body := fmt.Sprintf("Hi %s!\n\nYou've added %q to your favorites!\n\nWe'll keep you updated with similar recommendations.\n\nBest regards,\nMovie Recommendation Team\n",
		u.Username, args.MovieTitle)
	return t.Mailer.Send(u.Email, subject, body)
}

// GenerateAnalyticsReport aggregates usage metrics and caches the snapshot
// for the admin dashboard.
func (t *Tasks) GenerateAnalyticsReport(ctx context.Context, _ json.RawMessage) error {
	report := model.AnalyticsReport{GeneratedAt: time.Now().UTC().Format(time.RFC3339)}

	var err error
	if report.TotalUsers, err = t.Users.Count(ctx); err != nil {
		return fmt.Errorf("analytics: count users: %w", err)
	}
	if report.ActiveUsers, err = t.Users.CountActive(ctx); err != nil {
		return fmt.Errorf("analytics: count active users: %w", err)
	}
	if report.TotalFavorites, err = t.Favorites.Count(ctx); err != nil {
		return fmt.Errorf("analytics: count favorites: %w", err)
	}
	if report.AverageRating, err = t.Favorites.AverageRating(ctx); err != nil {
		return fmt.Errorf("analytics: average rating: %w", err)
	}
	if report.TopMovies, err = t.Favorites.TopMovies(ctx, 10); err != nil {
		return fmt.Errorf("analytics: top movies: %w", err)
	}
	if report.TopUsers, err = t.Favorites.TopUsers(ctx, 10); err != nil {
		return fmt.Errorf("analytics: top users: %w", err)
	}

	if err := t.Movies.StoreReport(ctx, report); err != nil {
		return fmt.Errorf("analytics: store report: %w", err)
	}
	log.Printf("task: analytics report generated (%d users, %d favorites)", report.TotalUsers, report.TotalFavorites)
	return nil
}

// BulkCachePopularMovies prefetches details for a batch of movie ids.
// Individual failures are skipped so one bad id cannot starve the rest of
// the batch; the task only fails (and retries) when the batch cannot be
// decoded at all.
func (t *Tasks) BulkCachePopularMovies(ctx context.Context, raw json.RawMessage) error {
	var args queue.BulkCacheArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("bulk cache: decode args: %w", err)
	}

	cached := 0
	for _, id := range args.MovieIDs {
		if _, err := t.Movies.RefreshDetails(ctx, id); err != nil {
			log.Printf("task: bulk cache movie %d failed: %v", id, err)
			continue
		}
		cached++
	}
	log.Printf("task: bulk cache completed %d/%d movies", cached, len(args.MovieIDs))
	return nil
}
