package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

func testBooking(userID int64, date, tm string) *models.Booking {
	return &models.Booking{
		UserID: userID,
		Name:   "Client",
		Phone:  "79990000000",
		Branch: "A",
		Date:   date,
		Time:   tm,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := testBooking(1, "2030-06-03", "14:00")
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotEmpty(t, b.ID, "a missing id is generated on insert")
	assert.False(t, b.CreatedAt.IsZero())

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, "A", got.Branch)
	assert.Equal(t, "2030-06-03", got.Date)
	assert.Equal(t, "14:00", got.Time)
	assert.False(t, got.Notified24h)
	assert.False(t, got.Notified2h)
}

func TestGetBookingNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetBooking(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestMarkNotifiedFlags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := testBooking(1, "2030-06-03", "14:00")
	require.NoError(t, db.CreateBooking(ctx, b))

	require.NoError(t, db.MarkNotified24h(ctx, b.ID))
	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified24h)
	assert.False(t, got.Notified2h)

	// Marking again keeps the flag set.
	require.NoError(t, db.MarkNotified24h(ctx, b.ID))
	require.NoError(t, db.MarkNotified2h(ctx, b.ID))
	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified24h)
	assert.True(t, got.Notified2h)

	pending, err := db.ListUnnotified24h(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListUnnotified(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := testBooking(1, "2030-06-03", "14:00")
	second := testBooking(2, "2030-06-03", "15:00")
	require.NoError(t, db.CreateBooking(ctx, first))
	require.NoError(t, db.CreateBooking(ctx, second))
	require.NoError(t, db.MarkNotified24h(ctx, first.ID))

	pending, err := db.ListUnnotified24h(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	pending, err = db.ListUnnotified2h(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestListUserBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	past := testBooking(1, "2030-06-01", "12:00")
	upcoming := testBooking(1, "2030-06-05", "13:00")
	later := testBooking(1, "2030-06-03", "14:00")
	other := testBooking(2, "2030-06-05", "13:00")
	for _, b := range []*models.Booking{past, upcoming, later, other} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	got, err := db.ListUserBookings(ctx, 1, "2030-06-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, later.ID, got[0].ID, "results come back appointment-ordered")
	assert.Equal(t, upcoming.ID, got[1].ID)
}

func TestDeleteBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := testBooking(1, "2030-06-03", "14:00")
	require.NoError(t, db.CreateBooking(ctx, b))

	deleted, err := db.DeleteBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting an absent booking reports false")

	_, err = db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}
