package model

import "encoding/json"

// MovieList is the envelope TMDb wraps around trending, recommendation and
// search results.  Individual movies stay as raw JSON because the payload is
// cached and served wholesale; only the envelope fields are needed for
// pagination.
type MovieList struct {
	Page         int               `json:"page"`
	Results      []json.RawMessage `json:"results"`
	TotalPages   int               `json:"total_pages"`
	TotalResults int               `json:"total_results"`
}

// AnalyticsReport is the aggregated snapshot produced by the report task and
// cached for the admin dashboard.
type AnalyticsReport struct {
	GeneratedAt    string       `json:"generated_at"`
	TotalUsers     int64        `json:"total_users"`
	ActiveUsers    int64        `json:"active_users"`
	TotalFavorites int64        `json:"total_favorites"`
	AverageRating  float64      `json:"average_rating"`
	TopMovies      []MovieCount `json:"top_movies"`
	TopUsers       []UserCount  `json:"top_users"`
}

// MovieCount is a favorite-count aggregate for one movie.
type MovieCount struct {
	MovieID int    `json:"movie_id"`
	Title   string `json:"title"`
	Count   int64  `json:"count"`
}

// UserCount is a favorite-count aggregate for one user.
type UserCount struct {
	Username  string `json:"username"`
	Favorites int64  `json:"favorites"`
}
