package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/movie-recommendation/internal/model"
)

// ProfileRepo reads the 'user_profiles' table.  Profiles are created by
// UserRepo.Create inside the registration transaction; this repository only
// serves reads and bio updates.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// GetByUserID fetches the profile belonging to a user.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uint64) (model.UserProfile, error) {
	var (
		p   model.UserProfile
		bio sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,bio,created_at,updated_at FROM user_profiles WHERE user_id=? LIMIT 1",
		userID).Scan(&p.ID, &p.UserID, &bio, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Bio = bio.String
	return p, nil
}

// UpdateBio replaces the free-text bio for a user's profile.
func (r *ProfileRepo) UpdateBio(ctx context.Context, userID uint64, bio string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE user_profiles SET bio=? WHERE user_id=?", bio, userID)
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
