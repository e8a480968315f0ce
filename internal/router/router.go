package router // route registration for the movie recommendation API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/movie-recommendation/internal/handler"
	"github.com/iliyamo/movie-recommendation/internal/middleware"
)

// Register wires every route onto the Echo instance.  Public movie lookups
// sit behind the redis token bucket, favorites and profile require a valid
// access token, and cache statistics additionally require a staff account.
func Register(
	e *echo.Echo,
	health *handler.HealthHandler,
	movies *handler.MovieHandler,
	favorites *handler.FavoriteHandler,
	auth *handler.AuthHandler,
	jwtSecret string,
	rateLimit echo.MiddlewareFunc,
) {
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Validator = handler.NewRequestValidator()

	e.GET("/healthz", health.Health)

	// Public movie data, rate limited per client.
	m := e.Group("/api/movies")
	if rateLimit != nil {
		m.Use(rateLimit)
	}
	m.GET("/trending/", movies.Trending)
	m.GET("/recommendations/:movie_id/", movies.Recommendations)
	m.GET("/search/", movies.Search)
	m.GET("/details/:movie_id/", movies.Details)

	// Favorites require authentication; the JWT middleware runs before the
	// limiter so authenticated traffic is keyed by user rather than IP.
	f := e.Group("/api/movies/favorites")
	f.Use(middleware.JWTAuth(jwtSecret))
	f.GET("/", favorites.List)
	f.POST("/add/", favorites.Add)
	f.DELETE("/remove/:movie_id/", favorites.Remove)

	// Cache statistics are for staff only.
	s := e.Group("/api/movies/cache-stats")
	s.Use(middleware.JWTAuth(jwtSecret), middleware.RequireStaff())
	s.GET("/", movies.CacheStats)

	u := e.Group("/api/users")
	u.POST("/register/", auth.Register)
	u.POST("/login/", auth.Login)
	u.POST("/token/refresh/", auth.Refresh)
	u.GET("/profile/", auth.Profile, middleware.JWTAuth(jwtSecret))
	u.PUT("/profile/", auth.UpdateProfile, middleware.JWTAuth(jwtSecret))
}
