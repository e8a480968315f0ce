package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-recommendation/internal/model"
	"github.com/iliyamo/movie-recommendation/internal/queue"
)

// fakeMovieStore records which cache maintenance calls ran.
type fakeMovieStore struct {
	refreshedPages  []int
	refreshedMovies []int
	cleanupRemoved  int
	storedReport    any

	refreshErrFor map[int]error // per-movie detail refresh failures
	trendingErr   error
}

func (f *fakeMovieStore) RefreshTrending(_ context.Context, page int) error {
	if f.trendingErr != nil {
		return f.trendingErr
	}
	f.refreshedPages = append(f.refreshedPages, page)
	return nil
}

func (f *fakeMovieStore) RefreshDetails(_ context.Context, movieID int) (json.RawMessage, error) {
	if err := f.refreshErrFor[movieID]; err != nil {
		return nil, err
	}
	f.refreshedMovies = append(f.refreshedMovies, movieID)
	return json.RawMessage(`{}`), nil
}

func (f *fakeMovieStore) CleanupStale(_ context.Context) (int, error) {
	return f.cleanupRemoved, nil
}

func (f *fakeMovieStore) StoreReport(_ context.Context, report any) error {
	f.storedReport = report
	return nil
}

type fakeUserStore struct {
	byID   map[uint64]model.User
	active []model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, errors.New("no such user")
	}
	return u, nil
}

func (f *fakeUserStore) Count(_ context.Context) (int64, error) { return int64(len(f.byID)), nil }

func (f *fakeUserStore) CountActive(_ context.Context) (int64, error) {
	return int64(len(f.active)), nil
}
func (f *fakeUserStore) ActiveWithFavorites(_ context.Context) ([]model.User, error) {
	return f.active, nil
}

type fakeFavoriteStore struct {
	recent    map[uint64][]model.FavoriteMovie
	recentErr map[uint64]error
}

func (f *fakeFavoriteStore) RecentByUser(_ context.Context, userID uint64, n int) ([]model.FavoriteMovie, error) {
	if err := f.recentErr[userID]; err != nil {
		return nil, err
	}
	favs := f.recent[userID]
	if len(favs) > n {
		favs = favs[:n]
	}
	return favs, nil
}

func (f *fakeFavoriteStore) Count(_ context.Context) (int64, error) { return 42, nil }

func (f *fakeFavoriteStore) AverageRating(_ context.Context) (float64, error) { return 7.5, nil }
func (f *fakeFavoriteStore) TopMovies(_ context.Context, n int) ([]model.MovieCount, error) {
	return []model.MovieCount{{MovieID: 550, Title: "Fight Club", Count: 9}}, nil
}
func (f *fakeFavoriteStore) TopUsers(_ context.Context, n int) ([]model.UserCount, error) {
	return []model.UserCount{{Username: "alice", Favorites: 9}}, nil
}

// fakeMailer records sends and can fail for chosen recipients.
type fakeMailer struct {
	sent    []string // recipient addresses
	subject []string
	failFor map[string]error
}

func (f *fakeMailer) Send(to, subject, _ string) error {
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, to)
	f.subject = append(f.subject, subject)
	return nil
}

func TestRefreshTrendingCache(t *testing.T) {
	movies := &fakeMovieStore{}
	tasks := New(movies, &fakeUserStore{}, &fakeFavoriteStore{}, &fakeMailer{})

	require.NoError(t, tasks.RefreshTrendingCache(context.Background(), nil))
	assert.Equal(t, []int{1, 2, 3}, movies.refreshedPages)
}

func TestRefreshTrendingCacheFailsForRetry(t *testing.T) {
	movies := &fakeMovieStore{trendingErr: errors.New("tmdb down")}
	tasks := New(movies, &fakeUserStore{}, &fakeFavoriteStore{}, &fakeMailer{})

	// A failed refresh must surface as an error so the queue retry policy
	// kicks in.
	assert.Error(t, tasks.RefreshTrendingCache(context.Background(), nil))
}

func TestSendWeeklyRecommendations(t *testing.T) {
	alice := model.User{ID: 1, Username: "alice", Email: "alice@example.com", IsActive: true}
	bob := model.User{ID: 2, Username: "bob", Email: "bob@example.com", IsActive: true}
	carol := model.User{ID: 3, Username: "carol", Email: "carol@example.com", IsActive: true}

	favorites := &fakeFavoriteStore{recent: map[uint64][]model.FavoriteMovie{
		1: {{MovieID: 550, Title: "Fight Club", VoteAverage: 8.4}},
		2: {{MovieID: 680, Title: "Pulp Fiction", VoteAverage: 8.5}},
		3: {{MovieID: 13, Title: "Forrest Gump", VoteAverage: 8.5}},
	}}
	mailer := &fakeMailer{failFor: map[string]error{"bob@example.com": errors.New("mailbox full")}}
	tasks := New(&fakeMovieStore{}, &fakeUserStore{active: []model.User{alice, bob, carol}}, favorites, mailer)

	// Bob's send blows up; the batch must still reach carol.
	require.NoError(t, tasks.SendWeeklyRecommendations(context.Background(), nil))
	assert.Equal(t, []string{"alice@example.com", "carol@example.com"}, mailer.sent)
}

func TestWeeklyDigestSkipsUsersWithoutRecentFavorites(t *testing.T) {
	alice := model.User{ID: 1, Username: "alice", Email: "alice@example.com"}
	tasks := New(&fakeMovieStore{},
		&fakeUserStore{active: []model.User{alice}},
		&fakeFavoriteStore{recent: map[uint64][]model.FavoriteMovie{}},
		&fakeMailer{})

	require.NoError(t, tasks.SendWeeklyRecommendations(context.Background(), nil))
}

func TestFetchMovieDetails(t *testing.T) {
	movies := &fakeMovieStore{}
	tasks := New(movies, &fakeUserStore{}, &fakeFavoriteStore{}, &fakeMailer{})

	args, _ := json.Marshal(queue.FetchDetailsArgs{MovieID: 550})
	require.NoError(t, tasks.FetchMovieDetails(context.Background(), args))
	assert.Equal(t, []int{550}, movies.refreshedMovies)

	assert.Error(t, tasks.FetchMovieDetails(context.Background(), json.RawMessage(`not json`)))
}

func TestSendFavoriteNotification(t *testing.T) {
	t.Run("mails the user", func(t *testing.T) {
		mailer := &fakeMailer{}
		users := &fakeUserStore{byID: map[uint64]model.User{
			7: {ID: 7, Username: "alice", Email: "alice@example.com"},
		}}
		tasks := New(&fakeMovieStore{}, users, &fakeFavoriteStore{}, mailer)

		args, _ := json.Marshal(queue.FavoriteNotificationArgs{UserID: 7, MovieTitle: "Fight Club"})
		require.NoError(t, tasks.SendFavoriteNotification(context.Background(), args))
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "Added to Favorites: Fight Club", mailer.subject[0])
	})

	t.Run("no email address is a skip, not a failure", func(t *testing.T) {
		mailer := &fakeMailer{}
		users := &fakeUserStore{byID: map[uint64]model.User{
			7: {ID: 7, Username: "alice"},
		}}
		tasks := New(&fakeMovieStore{}, users, &fakeFavoriteStore{}, mailer)

		args, _ := json.Marshal(queue.FavoriteNotificationArgs{UserID: 7, MovieTitle: "Fight Club"})
		require.NoError(t, tasks.SendFavoriteNotification(context.Background(), args))
		assert.Empty(t, mailer.sent)
	})

	t.Run("unknown user is an error and retried", func(t *testing.T) {
		tasks := New(&fakeMovieStore{}, &fakeUserStore{byID: map[uint64]model.User{}}, &fakeFavoriteStore{}, &fakeMailer{})
		args, _ := json.Marshal(queue.FavoriteNotificationArgs{UserID: 99, MovieTitle: "Fight Club"})
		assert.Error(t, tasks.SendFavoriteNotification(context.Background(), args))
	})
}

func TestGenerateAnalyticsReport(t *testing.T) {
	movies := &fakeMovieStore{}
	users := &fakeUserStore{
		byID:   map[uint64]model.User{1: {}, 2: {}, 3: {}},
		active: []model.User{{}, {}},
	}
	tasks := New(movies, users, &fakeFavoriteStore{}, &fakeMailer{})

	require.NoError(t, tasks.GenerateAnalyticsReport(context.Background(), nil))
	report, ok := movies.storedReport.(model.AnalyticsReport)
	require.True(t, ok)
	assert.Equal(t, int64(3), report.TotalUsers)
	assert.Equal(t, int64(2), report.ActiveUsers)
	assert.Equal(t, int64(42), report.TotalFavorites)
	assert.Equal(t, 7.5, report.AverageRating)
	require.Len(t, report.TopMovies, 1)
	assert.Equal(t, 550, report.TopMovies[0].MovieID)
	assert.NotEmpty(t, report.GeneratedAt)
}

func TestBulkCachePopularMovies(t *testing.T) {
	movies := &fakeMovieStore{refreshErrFor: map[int]error{680: errors.New("tmdb 404")}}
	tasks := New(movies, &fakeUserStore{}, &fakeFavoriteStore{}, &fakeMailer{})

	args, _ := json.Marshal(queue.BulkCacheArgs{MovieIDs: []int{550, 680, 13}})
	// 680 fails but the rest of the batch still caches.
	require.NoError(t, tasks.BulkCachePopularMovies(context.Background(), args))
	assert.Equal(t, []int{550, 13}, movies.refreshedMovies)
}

func TestHandlersCoverEveryTask(t *testing.T) {
	tasks := New(&fakeMovieStore{}, &fakeUserStore{}, &fakeFavoriteStore{}, &fakeMailer{})
	handlers := tasks.Handlers()
	for name := range queue.Specs {
		assert.Contains(t, handlers, name)
	}
	assert.Len(t, handlers, len(queue.Specs))
}
