package model

import "time"

// FavoriteMovie mirrors the 'favorite_movies' table.  A UNIQUE KEY on
// (user_id, movie_id) enforces that a user can favorite a movie only once;
// inserts rely on that constraint instead of a prior existence check so
// concurrent duplicate attempts cannot race past each other.  Rows are
// never updated in place.
type FavoriteMovie struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"-"`
	MovieID     int       `json:"movie_id"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"poster_path,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	VoteAverage float64   `json:"vote_average"`
	AddedAt     time.Time `json:"added_at"`
}
