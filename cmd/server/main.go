package main // HTTP API entry point

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-recommendation/internal/cache"
	"github.com/iliyamo/movie-recommendation/internal/config"
	"github.com/iliyamo/movie-recommendation/internal/database"
	"github.com/iliyamo/movie-recommendation/internal/handler"
	"github.com/iliyamo/movie-recommendation/internal/middleware"
	"github.com/iliyamo/movie-recommendation/internal/queue"
	"github.com/iliyamo/movie-recommendation/internal/repository"
	"github.com/iliyamo/movie-recommendation/internal/router"
	"github.com/iliyamo/movie-recommendation/internal/tmdb"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	// The redis client may come back nil when the server is unreachable;
	// the cache layer then misses every lookup and the limiter disables
	// itself, so the API still serves.
	rdb := config.NewRedisClient()
	var backend cache.Backend
	if rdb != nil {
		backend = cache.NewRedisBackend(rdb)
	} else {
		backend = cache.NullBackend{}
	}
	movieCache := cache.NewMovieCache(backend, tmdb.New(cfg.TMDBAPIKey, cfg.TMDBBaseURL))

	pub, err := queue.NewPublisher(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer pub.Close()

	users := repository.NewUserRepo(db)
	profiles := repository.NewProfileRepo(db)
	tokens := repository.NewTokenRepo(db)
	favorites := repository.NewFavoriteRepo(db)

	e := echo.New()
	e.HideBanner = true
	router.Register(e,
		handler.NewHealthHandler(db, rdb),
		handler.NewMovieHandler(movieCache),
		handler.NewFavoriteHandler(favorites, pub),
		handler.NewAuthHandler(cfg, users, profiles, tokens),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
