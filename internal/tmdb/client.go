// Package tmdb wraps outbound calls to The Movie Database API.  The client
// applies a fixed request timeout and classifies transport failures; it never
// retries; retry policy belongs to the background tasks that call it.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// requestTimeout bounds every outbound TMDb call.
const requestTimeout = 10 * time.Second

// Client talks to the TMDb v3 API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New creates a TMDb client.  The API key is sent both as a bearer header
// and as the api_key query parameter, matching what TMDb accepts for v3
// endpoints.
func New(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Trending fetches a page of the weekly trending movies list.
func (c *Client) Trending(ctx context.Context, page int) (json.RawMessage, error) {
	return c.get(ctx, "trending/movie/week", url.Values{"page": {strconv.Itoa(page)}})
}

// Recommendations fetches the recommendation list for a movie.
func (c *Client) Recommendations(ctx context.Context, movieID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("movie/%d/recommendations", movieID), nil)
}

// Search runs a movie title search.  Never cached by callers.
func (c *Client) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	return c.get(ctx, "search/movie", url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	})
}

// Details fetches a single movie's detail document.
func (c *Client) Details(ctx context.Context, movieID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("movie/%d", movieID), nil)
}

// get performs one request and maps failures onto the package's error kinds:
// HTTP errors become *StatusError, timeouts ErrTimeout, unreachable hosts
// ErrConnection, bad bodies ErrDecode, anything else a generic wrapped error.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	log.Printf("tmdb: GET %s", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tmdb: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w (endpoint %s)", ErrDecode, endpoint)
	}
	return json.RawMessage(body), nil
}

func classify(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("tmdb: request failed: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
