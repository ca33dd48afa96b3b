package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"flowermarket-svc/apperr"
	"flowermarket-svc/cache"
	"flowermarket-svc/dispatch"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice  = models.Viewer{UserID: "client-alice", Role: models.RoleClient}
	bob    = models.Viewer{UserID: "client-bob", Role: models.RoleClient}
	admin  = models.Viewer{UserID: "admin-1", Role: models.RoleAdmin}
	admin2 = models.Viewer{UserID: "admin-2", Role: models.RoleAdmin}
)

// mapCache mirrors the Redis generation scheme in memory.
type mapCache struct {
	mu     sync.Mutex
	values map[string]int
	gens   map[string]int64
	hits   int
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]int{}, gens: map[string]int64{}}
}

func (m *mapCache) GetCount(_ context.Context, key string) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return 0, m.gens[key], cache.ErrMiss
	}
	m.hits++
	return v, m.gens[key], nil
}

func (m *mapCache) SetCount(_ context.Context, key string, count int, gen int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != gen {
		return
	}
	m.values[key] = count
}

func (m *mapCache) InvalidateCount(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[key]++
	delete(m.values, key)
}

func (m *mapCache) Deliver(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		if n.UserID != nil {
			m.InvalidateCount(ctx, cache.UnreadUserKey(*n.UserID))
		} else if n.IsBroadcast() {
			m.InvalidateCount(ctx, cache.UnreadBroadcastKey)
		}
	}
}

func setupNotificationsTest(t *testing.T) (*Service, *repository.MemoryRepository, *mapCache) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	counts := newMapCache()
	return NewService(repo, counts, nil, zaptest.NewLogger(t)), repo, counts
}

func store(t *testing.T, repo *repository.MemoryRepository, notes ...models.Notification) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.WithTx(ctx, func(tx repository.Tx) error {
		return dispatch.Emit(ctx, tx, notes)
	}))
}

func userID(s string) *string { return &s }

func note(title string, typ models.NotificationType, uid *string) models.Notification {
	n := dispatch.VisitTracked(models.RoleClient)[0]
	n.Title, n.Type, n.UserID = title, typ, uid
	return n
}

func titles(notes []models.Notification) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Title)
	}
	return out
}

func TestListUnread_Routing(t *testing.T) {
	svc, repo, _ := setupNotificationsTest(t)
	ctx := context.Background()

	store(t, repo,
		note("alice-1", models.NotificationTypeClient, userID(alice.UserID)),
		note("broadcast", models.NotificationTypeAdmin, nil),
		note("bob-1", models.NotificationTypeClient, userID(bob.UserID)),
		note("admin-direct", models.NotificationTypeAdmin, userID(admin.UserID)),
		note("alice-2", models.NotificationTypeClient, userID(alice.UserID)),
	)

	got, err := svc.ListUnread(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-2", "alice-1"}, titles(got))

	got, err = svc.ListUnread(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-direct", "broadcast"}, titles(got))

	got, err = svc.ListUnread(ctx, admin2)
	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast"}, titles(got))

	_, err = svc.ListUnread(ctx, models.Viewer{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestUnreadCount_MatchesListAndUsesCache(t *testing.T) {
	svc, repo, counts := setupNotificationsTest(t)
	ctx := context.Background()

	store(t, repo,
		note("alice-1", models.NotificationTypeClient, userID(alice.UserID)),
		note("broadcast-1", models.NotificationTypeAdmin, nil),
		note("broadcast-2", models.NotificationTypeAdmin, nil),
		note("admin-direct", models.NotificationTypeAdmin, userID(admin.UserID)),
	)

	for _, v := range []models.Viewer{alice, bob, admin, admin2} {
		list, err := svc.ListUnread(ctx, v)
		require.NoError(t, err)
		count, err := svc.UnreadCount(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, len(list), count, "viewer %s", v.UserID)
	}

	count, err := svc.UnreadCount(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Positive(t, counts.hits)
	assert.Equal(t, 2, counts.values[cache.UnreadBroadcastKey])
}

func TestMarkRead_IdempotentAndInvalidatesCount(t *testing.T) {
	svc, repo, counts := setupNotificationsTest(t)
	ctx := context.Background()

	n := note("alice-1", models.NotificationTypeClient, userID(alice.UserID))
	store(t, repo, n)

	count, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, svc.MarkRead(ctx, alice, n.ID.String()))
	_, cached := counts.values[cache.UnreadUserKey(alice.UserID)]
	assert.False(t, cached)

	require.NoError(t, svc.MarkRead(ctx, alice, n.ID.String()))

	count, err = svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, count)

	list, err := svc.ListUnread(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMarkRead_Visibility(t *testing.T) {
	svc, repo, _ := setupNotificationsTest(t)
	ctx := context.Background()

	broadcast := note("broadcast", models.NotificationTypeAdmin, nil)
	aliceNote := note("alice-1", models.NotificationTypeClient, userID(alice.UserID))
	store(t, repo, broadcast, aliceNote)

	err := svc.MarkRead(ctx, alice, broadcast.ID.String())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = svc.MarkRead(ctx, bob, aliceNote.ID.String())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	list, err := svc.ListUnread(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.MarkRead(ctx, admin, broadcast.ID.String()))

	// The read flag is shared by every admin.
	list, err = svc.ListUnread(ctx, admin2)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListUnread(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMarkRead_InvalidInput(t *testing.T) {
	svc, _, _ := setupNotificationsTest(t)
	ctx := context.Background()

	err := svc.MarkRead(ctx, alice, "not-a-uuid")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = svc.MarkRead(ctx, alice, "6f1c1a0e-6a44-4c55-9d3e-0b6a4c7f2a10")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestTrackVisit(t *testing.T) {
	svc, _, _ := setupNotificationsTest(t)
	ctx := context.Background()

	require.NoError(t, svc.TrackVisit(ctx, "Prestataire"))
	require.NoError(t, svc.TrackVisit(ctx, ""))
	require.NoError(t, svc.TrackVisit(ctx, "Admin"))

	list, err := svc.ListUnread(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{dispatch.TitleClientVisit, dispatch.TitleClientVisit, dispatch.TitlePrestataireVisit}, titles(list))

	list, err = svc.ListUnread(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type brokenRepo struct {
	*repository.MemoryRepository
}

func (brokenRepo) CountUnreadForUser(context.Context, string) (int, error) {
	return 0, errors.New("connection reset")
}

func TestUnreadCount_StorageError(t *testing.T) {
	svc := NewService(brokenRepo{repository.NewMemoryRepository()}, nil, nil, zaptest.NewLogger(t))
	_, err := svc.UnreadCount(context.Background(), alice)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

// interleavingRepo commits a notification for the counted user right after
// the database count is taken, before the service can cache it.
type interleavingRepo struct {
	*repository.MemoryRepository
	counts *mapCache
	once   sync.Once
}

func (r *interleavingRepo) CountUnreadForUser(ctx context.Context, id string) (int, error) {
	n, err := r.MemoryRepository.CountUnreadForUser(ctx, id)
	if err != nil {
		return 0, err
	}
	r.once.Do(func() {
		notes := []models.Notification{note("late", models.NotificationTypeClient, userID(id))}
		if err := r.WithTx(ctx, func(tx repository.Tx) error {
			return dispatch.Emit(ctx, tx, notes)
		}); err == nil {
			r.counts.Deliver(ctx, notes)
		}
	})
	return n, nil
}

func TestUnreadCount_InvalidationDuringLoadIsNotCached(t *testing.T) {
	counts := newMapCache()
	repo := &interleavingRepo{MemoryRepository: repository.NewMemoryRepository(), counts: counts}
	svc := NewService(repo, counts, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, first)
	_, cached := counts.values[cache.UnreadUserKey(alice.UserID)]
	assert.False(t, cached, "count loaded before the invalidation must not be cached")

	list, err := svc.ListUnread(ctx, alice)
	require.NoError(t, err)
	count, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, len(list), count)
}
