package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Prefix namespaces every key this application writes, so the cleanup task
// can scan its own keys without touching anything else in the database.
const Prefix = "movies_app:"

// Per-resource TTLs.  Trending shifts hourly, recommendations are fairly
// stable, details rarely change at all.
const (
	TrendingTTL        = 3600 * time.Second
	RecommendationsTTL = 7200 * time.Second
	DetailsTTL         = 86400 * time.Second
	ReportTTL          = 43200 * time.Second
)

// ReportKey holds the latest analytics report snapshot.
const ReportKey = Prefix + "analytics_report"

// Fetcher is the slice of the TMDb client the cache reads through to.
type Fetcher interface {
	Trending(ctx context.Context, page int) (json.RawMessage, error)
	Recommendations(ctx context.Context, movieID int) (json.RawMessage, error)
	Search(ctx context.Context, query string, page int) (json.RawMessage, error)
	Details(ctx context.Context, movieID int) (json.RawMessage, error)
}

// MovieCache is the read-through layer in front of TMDb: lookups check the
// backend first and only fall through to the network on a miss, storing the
// raw payload under a deterministic key with the resource's TTL.  Search is
// deliberately a passthrough.  Concurrent misses on the same key collapse
// into one upstream call via singleflight.
type MovieCache struct {
	backend Backend
	tmdb    Fetcher
	group   singleflight.Group
}

func NewMovieCache(backend Backend, tmdb Fetcher) *MovieCache {
	return &MovieCache{backend: backend, tmdb: tmdb}
}

func TrendingKey(page int) string  { return fmt.Sprintf("%strending_movies_%d", Prefix, page) }
func RecommendedKey(id int) string { return fmt.Sprintf("%srecommended_movies_%d", Prefix, id) }
func DetailsKey(id int) string     { return fmt.Sprintf("%smovie_details_%d", Prefix, id) }

// Trending returns one page of trending movies, cached for an hour.
func (m *MovieCache) Trending(ctx context.Context, page int) (json.RawMessage, error) {
	return m.readThrough(ctx, TrendingKey(page), TrendingTTL, func() (json.RawMessage, error) {
		return m.tmdb.Trending(ctx, page)
	})
}

// Recommendations returns the recommendation list for a movie, cached for
// two hours.
func (m *MovieCache) Recommendations(ctx context.Context, movieID int) (json.RawMessage, error) {
	return m.readThrough(ctx, RecommendedKey(movieID), RecommendationsTTL, func() (json.RawMessage, error) {
		return m.tmdb.Recommendations(ctx, movieID)
	})
}

// Details returns a single movie's detail document, cached for a day.
func (m *MovieCache) Details(ctx context.Context, movieID int) (json.RawMessage, error) {
	return m.readThrough(ctx, DetailsKey(movieID), DetailsTTL, func() (json.RawMessage, error) {
		return m.tmdb.Details(ctx, movieID)
	})
}

// Search always goes to TMDb; repeated identical queries re-hit the network.
func (m *MovieCache) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	return m.tmdb.Search(ctx, query, page)
}

// RefreshTrending refetches a trending page and overwrites the cached copy
// regardless of its current state.  Used by the hourly refresh task.
func (m *MovieCache) RefreshTrending(ctx context.Context, page int) error {
	data, err := m.tmdb.Trending(ctx, page)
	if err != nil {
		return err
	}
	return m.backend.Set(ctx, TrendingKey(page), data, TrendingTTL)
}

// RefreshDetails refetches a movie's details and overwrites the cached copy.
// Used by the on-demand prefetch and bulk-cache tasks.
func (m *MovieCache) RefreshDetails(ctx context.Context, movieID int) (json.RawMessage, error) {
	data, err := m.tmdb.Details(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if err := m.backend.Set(ctx, DetailsKey(movieID), data, DetailsTTL); err != nil {
		return nil, err
	}
	return data, nil
}

// StoreReport caches an analytics report snapshot for 12 hours.
func (m *MovieCache) StoreReport(ctx context.Context, report any) error {
	bs, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return m.backend.Set(ctx, ReportKey, bs, ReportTTL)
}

// CleanupStale scans the application namespace and deletes keys whose TTL
// says they are already gone or that carry no expiry at all.  Deleting
// no-expiry keys reclaims entries that were set without a TTL; it also
// removes keys meant to be permanent, which matches how the cleanup has
// always behaved.
func (m *MovieCache) CleanupStale(ctx context.Context) (int, error) {
	keys, err := m.backend.Keys(ctx, Prefix+"*")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		ttl, err := m.backend.TTLSeconds(ctx, key)
		if err != nil {
			return removed, err
		}
		if ttl == TTLMissing || ttl == TTLNone {
			if _, err := m.backend.Del(ctx, key); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Stats exposes the backend's own hit/miss counters.
func (m *MovieCache) Stats(ctx context.Context) (Stats, error) {
	return m.backend.Stats(ctx)
}

func (m *MovieCache) readThrough(ctx context.Context, key string, ttl time.Duration, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if cached, err := m.backend.Get(ctx, key); err == nil {
		log.Printf("cache: hit %s", key)
		return cached, nil
	} else if !errors.Is(err, ErrMiss) {
		// A broken backend should not take the endpoint down; fall through
		// to the network.
		log.Printf("cache: get %s failed: %v", key, err)
	} else {
		log.Printf("cache: miss %s", key)
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		data, err := fetch()
		if err != nil {
			return nil, err
		}
		if err := m.backend.Set(ctx, key, data, ttl); err != nil {
			log.Printf("cache: set %s failed: %v", key, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}
