package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-recommendation/internal/middleware"
	"github.com/iliyamo/movie-recommendation/internal/model"
	"github.com/iliyamo/movie-recommendation/internal/queue"
	"github.com/iliyamo/movie-recommendation/internal/repository"
)

// favoriteStore is the slice of the favorites repository these endpoints use.
type favoriteStore interface {
	Create(ctx context.Context, f *model.FavoriteMovie) error
	ListByUser(ctx context.Context, userID uint64) ([]model.FavoriteMovie, error)
	Delete(ctx context.Context, userID uint64, movieID int) error
}

// taskQueue submits background work.  Enqueue failures never fail the
// request; the favorite is already persisted by the time tasks fire.
type taskQueue interface {
	Enqueue(ctx context.Context, task string, args any) error
}

// FavoriteHandler serves the authenticated favorites endpoints.
type FavoriteHandler struct {
	Favorites favoriteStore
	Queue     taskQueue
}

func NewFavoriteHandler(favorites *repository.FavoriteRepo, q *queue.Publisher) *FavoriteHandler {
	return &FavoriteHandler{Favorites: favorites, Queue: q}
}

type addFavoriteReq struct {
	MovieID     int     `json:"movie_id" validate:"required,gt=0"`
	Title       string  `json:"title" validate:"required,max=255"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average" validate:"gte=0,lte=10"`
}

// List returns the caller's favorites, newest first.
func (h *FavoriteHandler) List(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	favorites, err := h.Favorites.ListByUser(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if favorites == nil {
		favorites = []model.FavoriteMovie{}
	}
	return c.JSON(http.StatusOK, favorites)
}

// Add persists a new favorite and kicks off two background tasks: a
// notification email and a detail prefetch so the movie page is warm.
// Duplicates are rejected by the store's unique key, so two concurrent
// requests for the same movie cannot both succeed.
func (h *FavoriteHandler) Add(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req addFavoriteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed"})
	}

	fav := model.FavoriteMovie{
		UserID:      userID,
		MovieID:     req.MovieID,
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Overview:    req.Overview,
		ReleaseDate: req.ReleaseDate,
		VoteAverage: req.VoteAverage,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Favorites.Create(ctx, &fav); err != nil {
		if errors.Is(err, repository.ErrDuplicateFavorite) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Movie already in favorites"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create favorite failed"})
	}

	// Fire-and-forget: the response does not wait on the broker.
	bg := c.Request().Context()
	if err := h.Queue.Enqueue(bg, queue.TaskSendFavoriteNotification, queue.FavoriteNotificationArgs{
		UserID:     userID,
		MovieTitle: fav.Title,
	}); err != nil {
		log.Printf("handler: enqueue %s: %v", queue.TaskSendFavoriteNotification, err)
	}
	if err := h.Queue.Enqueue(bg, queue.TaskFetchMovieDetails, queue.FetchDetailsArgs{
		MovieID: fav.MovieID,
	}); err != nil {
		log.Printf("handler: enqueue %s: %v", queue.TaskFetchMovieDetails, err)
	}

	return c.JSON(http.StatusCreated, fav)
}

// Remove deletes one of the caller's favorites.  Rows belonging to other
// users are invisible here, so removing someone else's favorite reports
// not-found rather than succeeding silently.
func (h *FavoriteHandler) Remove(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	movieID, err := strconv.Atoi(c.Param("movie_id"))
	if err != nil || movieID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movie id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Favorites.Delete(ctx, userID, movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Movie not found in favorites"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete favorite failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
