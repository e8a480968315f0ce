package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-recommendation/internal/cache"
	"github.com/iliyamo/movie-recommendation/internal/model"
	"github.com/iliyamo/movie-recommendation/internal/tmdb"
)

// MovieSource is the slice of the cache layer the movie endpoints read from.
type MovieSource interface {
	Trending(ctx context.Context, page int) (json.RawMessage, error)
	Recommendations(ctx context.Context, movieID int) (json.RawMessage, error)
	Search(ctx context.Context, query string, page int) (json.RawMessage, error)
	Details(ctx context.Context, movieID int) (json.RawMessage, error)
	Stats(ctx context.Context) (cache.Stats, error)
}

// MovieHandler serves the public movie endpoints.  All payloads come back
// from the cache layer as raw JSON and are written to the client wholesale.
type MovieHandler struct {
	Movies MovieSource
}

func NewMovieHandler(movies MovieSource) *MovieHandler {
	return &MovieHandler{Movies: movies}
}

// Trending returns one page of trending movies.
func (h *MovieHandler) Trending(c echo.Context) error {
	page, ok := queryInt(c, "page", 1, 1)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
	}
	data, err := h.Movies.Trending(c.Request().Context(), page)
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}

// Recommendations returns movies recommended for a given movie.  The cached
// payload holds a single result list; page and limit slice over it so clients
// can render smaller chunks without refetching.
func (h *MovieHandler) Recommendations(c echo.Context) error {
	movieID, err := strconv.Atoi(c.Param("movie_id"))
	if err != nil || movieID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movie id"})
	}
	page, ok := queryInt(c, "page", 1, 1)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
	}
	limit, ok := queryInt(c, "limit", 0, 1)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
	}

	data, err := h.Movies.Recommendations(c.Request().Context(), movieID)
	if err != nil {
		return upstreamError(c, err)
	}
	if limit <= 0 {
		// No limit requested: serve the cached payload as-is.
		return c.JSONBlob(http.StatusOK, data)
	}

	var list model.MovieList
	if err := json.Unmarshal(data, &list); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "malformed cached payload"})
	}
	return c.JSON(http.StatusOK, sliceList(list, page, limit))
}

// Search proxies a title search straight to the upstream API; results are
// never cached.
func (h *MovieHandler) Search(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Query parameter is required"})
	}
	page, ok := queryInt(c, "page", 1, 1)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
	}
	data, err := h.Movies.Search(c.Request().Context(), query, page)
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}

// Details returns the full detail document for one movie.
func (h *MovieHandler) Details(c echo.Context) error {
	movieID, err := strconv.Atoi(c.Param("movie_id"))
	if err != nil || movieID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movie id"})
	}
	data, err := h.Movies.Details(c.Request().Context(), movieID)
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}

// CacheStats exposes the cache backend's hit/miss counters.  The route is
// restricted to staff accounts.
func (h *MovieHandler) CacheStats(c echo.Context) error {
	stats, err := h.Movies.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache stats unavailable"})
	}
	return c.JSON(http.StatusOK, stats)
}

// sliceList cuts a result list down to the requested page/limit window and
// recomputes the envelope so pagination fields describe the sliced view.
func sliceList(list model.MovieList, page, limit int) model.MovieList {
	total := len(list.Results)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pages := (total + limit - 1) / limit
	if pages == 0 {
		pages = 1
	}
	return model.MovieList{
		Page:         page,
		Results:      list.Results[start:end],
		TotalPages:   pages,
		TotalResults: total,
	}
}

// queryInt reads an optional integer query parameter.  An absent parameter
// yields def; a present one must parse and be at least min, otherwise the
// boolean result is false.
func queryInt(c echo.Context, name string, def, min int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return 0, false
	}
	return n, true
}

// upstreamError maps a movie-data client failure onto a JSON error response.
// A bad HTTP status from upstream keeps its code where that makes sense for
// the caller (404 for an unknown id); everything else is a plain 500.
func upstreamError(c echo.Context, err error) error {
	var se *tmdb.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "movie not found"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
}
