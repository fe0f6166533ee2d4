package booking

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/database"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/events"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

type busRecorder struct {
	mu     sync.Mutex
	events []string
}

func (b *busRecorder) PublishJSON(eventType string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	return nil
}

func (b *busRecorder) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func newTestService(t *testing.T) (*Service, *database.DB, *busRecorder) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), time.UTC, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := &busRecorder{}
	svc := NewService(db, bus, models.SlotCapacity, time.UTC, &logger)
	svc.now = func() time.Time { return time.Date(2030, 6, 2, 10, 0, 0, 0, time.UTC) }
	return svc, db, bus
}

func addSlot(t *testing.T, db *database.DB, branch, date, tm string) {
	t.Helper()
	_, err := db.InsertSlotIfAbsent(context.Background(), branch, date, tm)
	require.NoError(t, err)
}

func TestServiceClaim(t *testing.T) {
	svc, db, bus := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")

	b, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.NotEmpty(t, b.ID)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UserID)

	slot, err := db.GetSlot(ctx, "A", "2030-06-03", "14:00")
	require.NoError(t, err)
	assert.Len(t, slot.Occupants, 1)

	assert.Equal(t, []string{events.TypeBookingConfirmed}, bus.published())
}

func TestServiceClaimFullSlot(t *testing.T) {
	svc, db, bus := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")

	_, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)
	_, err = svc.Claim(ctx, "A", "2030-06-03", "14:00", 2, "Борис", "79990000002")
	require.NoError(t, err)

	_, err = svc.Claim(ctx, "A", "2030-06-03", "14:00", 3, "Вера", "79990000003")
	assert.ErrorIs(t, err, database.ErrSlotTaken)

	// Rejection leaves the slot and the ledger untouched.
	slot, err := db.GetSlot(ctx, "A", "2030-06-03", "14:00")
	require.NoError(t, err)
	assert.Len(t, slot.Occupants, 2)
	assert.Len(t, bus.published(), 2, "no event for a rejected claim")
}

func TestServiceClaimMissingSlot(t *testing.T) {
	svc, _, bus := newTestService(t)

	_, err := svc.Claim(context.Background(), "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	assert.ErrorIs(t, err, database.ErrSlotNotFound)
	assert.Empty(t, bus.published())
}

func TestServiceCancel(t *testing.T) {
	svc, db, bus := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")

	b, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, b.ID, 1))

	_, err = db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, database.ErrBookingNotFound)

	slot, err := db.GetSlot(ctx, "A", "2030-06-03", "14:00")
	require.NoError(t, err)
	assert.Empty(t, slot.Occupants, "cancel frees the slot occupant")

	assert.Equal(t,
		[]string{events.TypeBookingConfirmed, events.TypeBookingCancelled},
		bus.published())

	// The freed slot is claimable again.
	_, err = svc.Claim(ctx, "A", "2030-06-03", "14:00", 2, "Борис", "79990000002")
	assert.NoError(t, err)
}

func TestServiceCancelWrongUser(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")

	b, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)

	err = svc.Cancel(ctx, b.ID, 2)
	assert.ErrorIs(t, err, database.ErrBookingNotFound,
		"another user's booking looks like a missing one")

	_, err = db.GetBooking(ctx, b.ID)
	assert.NoError(t, err, "the booking survives the foreign cancel attempt")
}

func TestServiceCancelReapedSlot(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")

	b, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)

	// The slot expires and gets reaped before the user cancels.
	_, err = db.DeleteExpiredSlots(ctx, time.Date(2030, 6, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.NoError(t, svc.Cancel(ctx, b.ID, 1),
		"cancel tolerates an already-reaped slot")
}

func TestServiceOpenSlots(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")
	addSlot(t, db, "A", "2030-06-03", "15:00")

	_, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)

	times, err := svc.OpenSlots(ctx, "A", "2030-06-03", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"15:00"}, times, "own claim is hidden")

	times, err = svc.OpenSlots(ctx, "A", "2030-06-03", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00", "15:00"}, times)
}

func TestServiceUserBookings(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	addSlot(t, db, "A", "2030-06-03", "14:00")
	addSlot(t, db, "A", "2030-06-05", "12:00")

	_, err := svc.Claim(ctx, "A", "2030-06-03", "14:00", 1, "Анна", "79990000001")
	require.NoError(t, err)
	_, err = svc.Claim(ctx, "A", "2030-06-05", "12:00", 1, "Анна", "79990000001")
	require.NoError(t, err)

	bookings, err := svc.UserBookings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "2030-06-03", bookings[0].Date)

	bookings, err = svc.UserBookings(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(database.ErrSlotTaken), "другое время")
	assert.Contains(t, UserMessage(database.ErrAlreadyClaimed), "уже записаны")
	assert.Contains(t, UserMessage(database.ErrSlotNotFound), "недоступно")
	assert.Contains(t, UserMessage(database.ErrBookingNotFound), "не найдена")
	assert.Contains(t, UserMessage(context.DeadlineExceeded), "Попробуйте позже")
}
