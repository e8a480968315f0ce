// Package repository defines error values that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting driver-specific error strings themselves. For example,
// ErrDuplicateFavorite signals that the database unique key on
// (user_id, movie_id) rejected an insert, which handlers translate
// into a 400 response, while ErrNotFound covers lookups and deletes
// that matched no row owned by the caller.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a row does not exist or does not belong
// to the requesting user. Handlers should translate this into an HTTP
// 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicateFavorite is returned when the unique (user_id, movie_id)
// key rejects a favorite insert. Handlers should translate this into
// an HTTP 400 response.
var ErrDuplicateFavorite = errors.New("movie already in favorites")

// ErrUsernameExists is returned when registration collides with an
// existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrTokenReused is returned when a refresh token that was already rotated
// is presented again. Either the legitimate client or a thief holds a
// stale copy, so handlers revoke the user's whole token family.
var ErrTokenReused = errors.New("refresh token reused")

// duplicateKey reports whether err is the MySQL duplicate-entry error (1062).
// The driver does not expose a typed value for it, so the message is matched
// the same way across repositories.
func duplicateKey(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "1062") || strings.Contains(s, "duplicate entry")
}
