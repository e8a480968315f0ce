package model

import "time"

// User mirrors the 'users' table.  Staff users may access the cache
// statistics endpoint; everyone else is a regular account.
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserProfile mirrors the 'user_profiles' table.  Exactly one profile
// exists per user; it is created inside the registration transaction and
// removed by the database cascade when the user is deleted.
type UserProfile struct {
	ID        uint64
	UserID    uint64
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
