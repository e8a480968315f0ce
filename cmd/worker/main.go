package main // background worker entry point

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/movie-recommendation/internal/cache"
	"github.com/iliyamo/movie-recommendation/internal/config"
	"github.com/iliyamo/movie-recommendation/internal/database"
	"github.com/iliyamo/movie-recommendation/internal/mailer"
	"github.com/iliyamo/movie-recommendation/internal/queue"
	"github.com/iliyamo/movie-recommendation/internal/repository"
	"github.com/iliyamo/movie-recommendation/internal/task"
	"github.com/iliyamo/movie-recommendation/internal/tmdb"
)

// The worker runs the queue consumers plus the periodic scheduler in one
// process.  It shares no memory with the API server; everything flows
// through the broker, the database and the cache.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	var backend cache.Backend
	if rdb != nil {
		backend = cache.NewRedisBackend(rdb)
	} else {
		// Without redis the cache tasks have nothing to maintain, but the
		// email tasks still work, so the worker starts anyway.
		log.Printf("worker: redis unavailable, cache tasks will be no-ops")
		backend = cache.NullBackend{}
	}
	movieCache := cache.NewMovieCache(backend, tmdb.New(cfg.TMDBAPIKey, cfg.TMDBBaseURL))

	pub, err := queue.NewPublisher(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer pub.Close()

	tasks := task.New(
		movieCache,
		repository.NewUserRepo(db),
		repository.NewFavoriteRepo(db),
		mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromEmail),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go queue.NewScheduler(pub).Run(ctx)

	worker := queue.NewWorker(cfg.AMQPURL, pub, tasks.Handlers())
	worker.Run(ctx)
	log.Printf("worker: shut down")
}
