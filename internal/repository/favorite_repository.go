package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/movie-recommendation/internal/model"
)

// FavoriteRepo persists per-user favorite movies.  Uniqueness of
// (user_id, movie_id) is enforced by the table's unique key, so Create is a
// bare insert and concurrent duplicate attempts are resolved by the
// database, not by an application-level existence check.
type FavoriteRepo struct{ DB *sql.DB }

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{DB: db} }

const favoriteColumns = "id,user_id,movie_id,title,poster_path,overview,release_date,vote_average,added_at"

// Create inserts a favorite and returns it with the assigned ID and
// timestamp. A duplicate (user_id, movie_id) pair maps to
// ErrDuplicateFavorite.
func (r *FavoriteRepo) Create(ctx context.Context, f *model.FavoriteMovie) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO favorite_movies (user_id, movie_id, title, poster_path, overview, release_date, vote_average) VALUES (?,?,?,?,?,?,?)",
		f.UserID, f.MovieID, f.Title, nullable(f.PosterPath), nullable(f.Overview), nullable(f.ReleaseDate), f.VoteAverage)
	if err != nil {
		if duplicateKey(err) {
			return ErrDuplicateFavorite
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)

	// Read back the server-assigned timestamp so the response carries it.
	return r.DB.QueryRowContext(ctx,
		"SELECT added_at FROM favorite_movies WHERE id=?", f.ID).Scan(&f.AddedAt)
}

// ListByUser returns the user's favorites, newest first.
func (r *FavoriteRepo) ListByUser(ctx context.Context, userID uint64) ([]model.FavoriteMovie, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+favoriteColumns+" FROM favorite_movies WHERE user_id=? ORDER BY added_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFavorites(rows)
}

// RecentByUser returns the user's n most recent favorites.
func (r *FavoriteRepo) RecentByUser(ctx context.Context, userID uint64, n int) ([]model.FavoriteMovie, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+favoriteColumns+" FROM favorite_movies WHERE user_id=? ORDER BY added_at DESC, id DESC LIMIT ?",
		userID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFavorites(rows)
}

// Delete removes the caller's favorite for movieID. The delete is scoped to
// user_id, so removing another user's row is indistinguishable from removing
// a row that never existed: both report ErrNotFound.
func (r *FavoriteRepo) Delete(ctx context.Context, userID uint64, movieID int) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM favorite_movies WHERE user_id=? AND movie_id=?", userID, movieID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of favorite rows.
func (r *FavoriteRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorite_movies").Scan(&n)
	return n, err
}

// AverageRating returns the mean vote_average across all favorites, 0 when
// there are none.
func (r *FavoriteRepo) AverageRating(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, "SELECT AVG(vote_average) FROM favorite_movies").Scan(&avg)
	return avg.Float64, err
}

// TopMovies returns the n most favorited movies.
func (r *FavoriteRepo) TopMovies(ctx context.Context, n int) ([]model.MovieCount, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT movie_id, title, COUNT(*) AS cnt FROM favorite_movies GROUP BY movie_id, title ORDER BY cnt DESC LIMIT ?",
		n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MovieCount
	for rows.Next() {
		var m model.MovieCount
		if err := rows.Scan(&m.MovieID, &m.Title, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TopUsers returns the n users with the most favorites.
func (r *FavoriteRepo) TopUsers(ctx context.Context, n int) ([]model.UserCount, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT u.username, COUNT(f.id) AS cnt FROM users u JOIN favorite_movies f ON f.user_id=u.id "+
			"GROUP BY u.id, u.username ORDER BY cnt DESC LIMIT ?",
		n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserCount
	for rows.Next() {
		var u model.UserCount
		if err := rows.Scan(&u.Username, &u.Favorites); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanFavorites(rows *sql.Rows) ([]model.FavoriteMovie, error) {
	var out []model.FavoriteMovie
	for rows.Next() {
		var (
			f                          model.FavoriteMovie
			poster, overview, released sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.MovieID, &f.Title, &poster, &overview, &released,
			&f.VoteAverage, &f.AddedAt); err != nil {
			return nil, err
		}
		f.PosterPath = poster.String
		f.Overview = overview.String
		f.ReleaseDate = released.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// nullable maps empty strings to SQL NULL so optional movie fields stay NULL
// in the table instead of empty strings.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
