package schedule

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	branches []string
	sameWeek bool
	err      error
}

func (f *fakeFeed) ActiveBranches(_ context.Context) ([]string, error) {
	return f.branches, f.err
}

func (f *fakeFeed) AvailableDates(_ context.Context, _ string) ([]string, error) {
	return nil, f.err
}

func (f *fakeFeed) SameWeek(_ context.Context, _ time.Time) (bool, error) {
	return f.sameWeek, f.err
}

type fakeStore struct {
	mu    sync.Mutex
	slots map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: make(map[string]bool)}
}

func (s *fakeStore) InsertSlotIfAbsent(_ context.Context, branch, date, tm string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := branch + "|" + date + "|" + tm
	if s.slots[key] {
		return false, nil
	}
	s.slots[key] = true
	return true, nil
}

func (s *fakeStore) CountSlots(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots), nil
}

func (s *fakeStore) has(branch, date, tm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[branch+"|"+date+"|"+tm]
}

func newTestSynchronizer(feed *fakeFeed, store *fakeStore, now time.Time) *Synchronizer {
	logger := zerolog.New(io.Discard)
	s := NewSynchronizer(feed, store, 12, 19, time.UTC, &logger)
	s.now = func() time.Time { return now }
	return s
}

func TestSyncWeekPopulatesWholeWeek(t *testing.T) {
	feed := &fakeFeed{branches: []string{"A", "B"}}
	store := newFakeStore()
	// Monday 2030-06-03 early morning: every slot of the week is ahead.
	now := time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC)
	sync := newTestSynchronizer(feed, store, now)

	require.NoError(t, sync.SyncWeek(context.Background()))

	// 2 branches, 7 days, hours 12..19 inclusive.
	n, err := store.CountSlots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*7*8, n)

	assert.True(t, store.has("A", "2030-06-03", "12:00"))
	assert.True(t, store.has("B", "2030-06-09", "19:00"), "Sunday closes the week")
	assert.False(t, store.has("A", "2030-06-10", "12:00"), "no slots past the week")
}

func TestSyncWeekSkipsTodaysPastHours(t *testing.T) {
	feed := &fakeFeed{branches: []string{"A"}}
	store := newFakeStore()
	// Wednesday 14:30: today's 12:00..14:00 already started.
	now := time.Date(2030, 6, 5, 14, 30, 0, 0, time.UTC)
	sync := newTestSynchronizer(feed, store, now)

	require.NoError(t, sync.SyncWeek(context.Background()))

	assert.False(t, store.has("A", "2030-06-05", "12:00"))
	assert.False(t, store.has("A", "2030-06-05", "14:00"))
	assert.True(t, store.has("A", "2030-06-05", "15:00"))
	// Other days of the week stay complete, past ones included.
	assert.True(t, store.has("A", "2030-06-03", "12:00"))
	assert.True(t, store.has("A", "2030-06-06", "12:00"))
}

func TestSyncWeekIdempotent(t *testing.T) {
	feed := &fakeFeed{branches: []string{"A"}}
	store := newFakeStore()
	now := time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC)
	sync := newTestSynchronizer(feed, store, now)

	require.NoError(t, sync.SyncWeek(context.Background()))
	first, err := store.CountSlots(context.Background())
	require.NoError(t, err)

	require.NoError(t, sync.SyncWeek(context.Background()))
	second, err := store.CountSlots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-sync must not duplicate slots")
}

func TestSyncWeekFeedFailureAborts(t *testing.T) {
	feed := &fakeFeed{err: errors.New("upstream unavailable")}
	store := newFakeStore()
	now := time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC)
	sync := newTestSynchronizer(feed, store, now)

	err := sync.SyncWeek(context.Background())
	require.Error(t, err)

	n, cerr := store.CountSlots(context.Background())
	require.NoError(t, cerr)
	assert.Zero(t, n, "a failed run leaves local state untouched")
}

func TestCheckWeek(t *testing.T) {
	now := time.Date(2030, 6, 3, 0, 5, 0, 0, time.UTC)

	t.Run("same week skips sync", func(t *testing.T) {
		feed := &fakeFeed{branches: []string{"A"}, sameWeek: true}
		store := newFakeStore()
		sync := newTestSynchronizer(feed, store, now)

		require.NoError(t, sync.CheckWeek(context.Background()))
		n, err := store.CountSlots(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("advanced week rebuilds", func(t *testing.T) {
		feed := &fakeFeed{branches: []string{"A"}, sameWeek: false}
		store := newFakeStore()
		sync := newTestSynchronizer(feed, store, now)

		require.NoError(t, sync.CheckWeek(context.Background()))
		n, err := store.CountSlots(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7*8, n)
	})

	t.Run("feed failure surfaces", func(t *testing.T) {
		feed := &fakeFeed{err: errors.New("upstream unavailable")}
		sync := newTestSynchronizer(feed, newFakeStore(), now)
		assert.Error(t, sync.CheckWeek(context.Background()))
	})
}

func TestTimeUntilNextMidnight(t *testing.T) {
	now := time.Date(2030, 6, 3, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Minute, timeUntilNextMidnight(now))
}
