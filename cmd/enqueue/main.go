package main // manual task submission, the operational counterpart to the scheduler

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/movie-recommendation/internal/config"
	"github.com/iliyamo/movie-recommendation/internal/queue"
)

// enqueue submits one named task to the broker.  Useful for smoke-testing
// the queue path and for kicking off on-demand batches:
//
//	enqueue -task refresh_trending_cache
//	enqueue -task bulk_cache_popular_movies -movies 550,680,13
//	enqueue -task fetch_movie_details -movie 550
func main() {
	taskName := flag.String("task", "", "task name to enqueue")
	movieID := flag.Int("movie", 0, "movie id (fetch_movie_details)")
	movieIDs := flag.String("movies", "", "comma-separated movie ids (bulk_cache_popular_movies)")
	flag.Parse()

	spec, ok := queue.Specs[*taskName]
	if !ok {
		known := make([]string, 0, len(queue.Specs))
		for name := range queue.Specs {
			known = append(known, name)
		}
		log.Fatalf("unknown task %q; known tasks: %s", *taskName, strings.Join(known, ", "))
	}

	var args any
	switch *taskName {
	case queue.TaskFetchMovieDetails:
		if *movieID <= 0 {
			log.Fatalf("%s needs -movie", *taskName)
		}
		args = queue.FetchDetailsArgs{MovieID: *movieID}
	case queue.TaskBulkCachePopularMovies:
		ids, err := parseIDs(*movieIDs)
		if err != nil {
			log.Fatalf("%s: %v", *taskName, err)
		}
		args = queue.BulkCacheArgs{MovieIDs: ids}
	}

	_ = godotenv.Load()
	pub, err := queue.NewPublisher(config.AMQPURL())
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pub.Enqueue(ctx, *taskName, args); err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	log.Printf("enqueued %s on queue %q (priority %d)", *taskName, spec.Queue, spec.Priority)
}

func parseIDs(csv string) ([]int, error) {
	if csv == "" {
		return nil, fmt.Errorf("needs -movies")
	}
	parts := strings.Split(csv, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad movie id %q", p)
		}
		ids = append(ids, n)
	}
	return ids, nil
}
