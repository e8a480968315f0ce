package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-recommendation/internal/config"
	"github.com/iliyamo/movie-recommendation/internal/middleware"
	"github.com/iliyamo/movie-recommendation/internal/model"
	"github.com/iliyamo/movie-recommendation/internal/repository"
	"github.com/iliyamo/movie-recommendation/internal/utils"
)

// fakeUserStore keeps accounts in memory.  Create hashes the password the
// same way the real repository does so Login can verify it.
type fakeUserStore struct {
	users    map[string]model.User // keyed by username
	nextID   uint64
	profiles int // profiles created alongside users
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]model.User)}
}

func (f *fakeUserStore) Create(_ context.Context, username, email, password, firstName, lastName string, cost int) (uint64, error) {
	if _, exists := f.users[username]; exists {
		return 0, repository.ErrUsernameExists
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	f.nextID++
	f.users[username] = model.User{
		ID:           f.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
	}
	f.profiles++
	return f.nextID, nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (model.User, error) {
	u, ok := f.users[username]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

type fakeProfileStore struct {
	bios map[uint64]string
}

func (f *fakeProfileStore) GetByUserID(_ context.Context, userID uint64) (model.UserProfile, error) {
	bio, ok := f.bios[userID]
	if !ok {
		return model.UserProfile{}, repository.ErrNotFound
	}
	return model.UserProfile{UserID: userID, Bio: bio}, nil
}

func (f *fakeProfileStore) UpdateBio(_ context.Context, userID uint64, bio string) error {
	if _, ok := f.bios[userID]; !ok {
		return repository.ErrNotFound
	}
	f.bios[userID] = bio
	return nil
}

// fakeTokenStore mirrors the refresh-token table: hashes in, revocation
// flips a flag.
type fakeTokenStore struct {
	stored  map[string]uint64
	revoked map[string]bool
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{stored: make(map[string]uint64), revoked: make(map[string]bool)}
}

func (f *fakeTokenStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, _ time.Time) error {
	f.stored[tokenHash] = userID
	return nil
}

func (f *fakeTokenStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	uid, ok := f.stored[tokenHash]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if f.revoked[tokenHash] {
		return uid, repository.ErrTokenReused
	}
	return uid, nil
}

func (f *fakeTokenStore) RevokeByHash(_ context.Context, tokenHash string) error {
	f.revoked[tokenHash] = true
	return nil
}

func (f *fakeTokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	for hash, uid := range f.stored {
		if uid == userID {
			f.revoked[hash] = true
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4, // bcrypt minimum keeps tests fast
	}
}

func newTestAuthHandler() (*AuthHandler, *fakeUserStore, *fakeTokenStore) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	h := &AuthHandler{
		Cfg:      testConfig(),
		Users:    users,
		Profiles: &fakeProfileStore{bios: map[uint64]string{}},
		Tokens:   tokens,
	}
	return h, users, tokens
}

func TestRegister(t *testing.T) {
	const body = `{
		"username": "alice", "email": "alice@example.com",
		"password": "longenough", "password_confirm": "longenough",
		"first_name": "Alice", "last_name": "Doe"
	}`

	t.Run("success returns user and tokens", func(t *testing.T) {
		h, users, tokens := newTestAuthHandler()
		c, rec := newTestContext(http.MethodPost, "/api/users/register/", body)
		require.NoError(t, h.Register(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			User struct {
				ID       uint64 `json:"id"`
				Username string `json:"username"`
			} `json:"user"`
			Tokens struct {
				Access  string `json:"access"`
				Refresh string `json:"refresh"`
			} `json:"tokens"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
		assert.NotEmpty(t, resp.Tokens.Access)
		assert.NotEmpty(t, resp.Tokens.Refresh)

		assert.Equal(t, 1, users.profiles, "registration creates exactly one profile")
		assert.Len(t, tokens.stored, 1, "refresh token hash must be persisted")
	})

	t.Run("password mismatch", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, rec := newTestContext(http.MethodPost, "/api/users/register/", `{
			"username": "alice", "email": "alice@example.com",
			"password": "longenough", "password_confirm": "different1"
		}`)
		require.NoError(t, h.Register(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "Passwords do not match"}`, rec.Body.String())
	})

	t.Run("short password", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, rec := newTestContext(http.MethodPost, "/api/users/register/", `{
			"username": "alice", "email": "alice@example.com",
			"password": "short", "password_confirm": "short"
		}`)
		require.NoError(t, h.Register(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, _ := newTestContext(http.MethodPost, "/api/users/register/", body)
		require.NoError(t, h.Register(c))

		c2, rec := newTestContext(http.MethodPost, "/api/users/register/", body)
		require.NoError(t, h.Register(c2))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin(t *testing.T) {
	register := func(t *testing.T, h *AuthHandler) {
		t.Helper()
		c, rec := newTestContext(http.MethodPost, "/api/users/register/", `{
			"username": "alice", "email": "alice@example.com",
			"password": "longenough", "password_confirm": "longenough"
		}`)
		require.NoError(t, h.Register(c))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	t.Run("valid credentials", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		register(t, h)
		c, rec := newTestContext(http.MethodPost, "/api/users/login/",
			`{"username":"alice","password":"longenough"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, rec := newTestContext(http.MethodPost, "/api/users/login/", `{"username":"alice"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "Username and password are required"}`, rec.Body.String())
	})

	t.Run("wrong password and unknown user look identical", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		register(t, h)

		c, rec := newTestContext(http.MethodPost, "/api/users/login/",
			`{"username":"alice","password":"wrongwrong"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		wrongPass := rec.Body.String()

		c2, rec2 := newTestContext(http.MethodPost, "/api/users/login/",
			`{"username":"nobody","password":"wrongwrong"}`)
		require.NoError(t, h.Login(c2))
		assert.Equal(t, http.StatusUnauthorized, rec2.Code)
		assert.JSONEq(t, wrongPass, rec2.Body.String())
	})
}

func TestRefresh(t *testing.T) {
	obtainPair := func(t *testing.T, h *AuthHandler) tokenPair {
		t.Helper()
		c, rec := newTestContext(http.MethodPost, "/api/users/register/", `{
			"username": "alice", "email": "alice@example.com",
			"password": "longenough", "password_confirm": "longenough"
		}`)
		require.NoError(t, h.Register(c))
		var resp authResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Tokens
	}

	t.Run("rotates the refresh token", func(t *testing.T) {
		h, _, tokens := newTestAuthHandler()
		pair := obtainPair(t, h)

		c, rec := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"`+pair.Refresh+`"}`)
		require.NoError(t, h.Refresh(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var next tokenPair
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
		assert.NotEqual(t, pair.Refresh, next.Refresh)
		assert.True(t, tokens.revoked[utils.HashRefreshRaw(pair.Refresh)],
			"the presented refresh token must be revoked")

		// Replaying the rotated-out token must fail.
		c2, rec2 := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"`+pair.Refresh+`"}`)
		require.NoError(t, h.Refresh(c2))
		assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	})

	t.Run("replaying a rotated token revokes the whole family", func(t *testing.T) {
		h, _, tokens := newTestAuthHandler()
		pair := obtainPair(t, h)

		c, rec := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"`+pair.Refresh+`"}`)
		require.NoError(t, h.Refresh(c))
		require.Equal(t, http.StatusOK, rec.Code)
		var next tokenPair
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))

		// A thief (or a confused client) presents the old token again.
		c2, rec2 := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"`+pair.Refresh+`"}`)
		require.NoError(t, h.Refresh(c2))
		assert.Equal(t, http.StatusUnauthorized, rec2.Code)
		assert.True(t, tokens.revoked[utils.HashRefreshRaw(next.Refresh)],
			"reuse must revoke the still-unused rotated token too")

		// The fresh token from the legitimate rotation is now dead as well.
		c3, rec3 := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"`+next.Refresh+`"}`)
		require.NoError(t, h.Refresh(c3))
		assert.Equal(t, http.StatusUnauthorized, rec3.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, rec := newTestContext(http.MethodPost, "/api/users/token/refresh/",
			`{"refresh":"not-a-token"}`)
		require.NoError(t, h.Refresh(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestProfile(t *testing.T) {
	t.Run("returns the caller's profile", func(t *testing.T) {
		h, users, _ := newTestAuthHandler()
		uid, err := users.Create(context.Background(), "alice", "alice@example.com", "longenough", "Alice", "Doe", 4)
		require.NoError(t, err)
		h.Profiles = &fakeProfileStore{bios: map[uint64]string{uid: "movie nerd"}}

		c, rec := newTestContext(http.MethodGet, "/api/users/profile/", "")
		c.Set(middleware.CtxUserID, uid)
		require.NoError(t, h.Profile(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp profileResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
		assert.Equal(t, "movie nerd", resp.Bio)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h, _, _ := newTestAuthHandler()
		c, rec := newTestContext(http.MethodGet, "/api/users/profile/", "")
		require.NoError(t, h.Profile(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdateProfile(t *testing.T) {
	setup := func(t *testing.T) (*AuthHandler, uint64) {
		t.Helper()
		h, users, _ := newTestAuthHandler()
		uid, err := users.Create(context.Background(), "alice", "alice@example.com", "longenough", "Alice", "Doe", 4)
		require.NoError(t, err)
		h.Profiles = &fakeProfileStore{bios: map[uint64]string{uid: "old bio"}}
		return h, uid
	}

	t.Run("replaces the bio", func(t *testing.T) {
		h, uid := setup(t)
		c, rec := newTestContext(http.MethodPut, "/api/users/profile/", `{"bio":"horror movie completionist"}`)
		c.Set(middleware.CtxUserID, uid)
		require.NoError(t, h.UpdateProfile(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp profileResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "horror movie completionist", resp.Bio)
		assert.Equal(t, "alice", resp.User.Username)
	})

	t.Run("missing profile row", func(t *testing.T) {
		h, uid := setup(t)
		h.Profiles = &fakeProfileStore{bios: map[uint64]string{}}
		c, rec := newTestContext(http.MethodPut, "/api/users/profile/", `{"bio":"anything"}`)
		c.Set(middleware.CtxUserID, uid)
		require.NoError(t, h.UpdateProfile(c))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("over-long bio", func(t *testing.T) {
		h, uid := setup(t)
		c, rec := newTestContext(http.MethodPut, "/api/users/profile/",
			`{"bio":"`+strings.Repeat("x", 501)+`"}`)
		c.Set(middleware.CtxUserID, uid)
		require.NoError(t, h.UpdateProfile(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h, _ := setup(t)
		c, rec := newTestContext(http.MethodPut, "/api/users/profile/", `{"bio":"x"}`)
		require.NoError(t, h.UpdateProfile(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
