// Package booking exposes the claim/cancel operations the conversational
// flow calls into.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/database"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/events"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/metrics"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/notify"
)

// Store is the persistence surface the service needs; *database.DB satisfies it.
type Store interface {
	ListOpenSlots(ctx context.Context, branch, date string, excludingUser int64, capacity int, now time.Time) ([]string, error)
	Claim(ctx context.Context, branch, date, tm string, occ models.Occupant, capacity int) error
	Release(ctx context.Context, branch, date, tm string, userID int64) error
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) (bool, error)
	ListUserBookings(ctx context.Context, userID int64, fromDate string) ([]models.Booking, error)
}

// Publisher is the event bus surface used to fan out notifications.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Service struct {
	store    Store
	bus      Publisher
	capacity int
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, bus Publisher, capacity int, loc *time.Location, logger *zerolog.Logger) *Service {
	return &Service{
		store:    store,
		bus:      bus,
		capacity: capacity,
		loc:      loc,
		logger:   logger,
		now:      func() time.Time { return time.Now().In(loc) },
	}
}

// OpenSlots lists the branch's free times on a date for the asking user.
func (s *Service) OpenSlots(ctx context.Context, branch, date string, userID int64) ([]string, error) {
	return s.store.ListOpenSlots(ctx, branch, date, userID, s.capacity, s.now())
}

// Claim atomically allocates a slot occupant and appends the booking to the
// ledger. On rejection the slot is untouched; on a ledger failure the
// occupant is released again so the slot does not leak.
func (s *Service) Claim(ctx context.Context, branch, date, tm string, userID int64, name, phone string) (*models.Booking, error) {
	occ := models.Occupant{UserID: userID, Name: name, Phone: phone}
	if err := s.store.Claim(ctx, branch, date, tm, occ, s.capacity); err != nil {
		if errors.Is(err, database.ErrSlotTaken) ||
			errors.Is(err, database.ErrSlotNotFound) ||
			errors.Is(err, database.ErrAlreadyClaimed) {
			metrics.IncClaim("rejected")
			s.logger.Info().
				Str("branch", branch).Str("date", date).Str("time", tm).
				Int64("user", userID).Msg("Claim rejected")
			return nil, err
		}
		metrics.IncClaim("error")
		return nil, fmt.Errorf("claim: %w", err)
	}

	b := &models.Booking{
		UserID: userID,
		Name:   name,
		Phone:  phone,
		Branch: branch,
		Date:   date,
		Time:   tm,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		if relErr := s.store.Release(ctx, branch, date, tm, userID); relErr != nil {
			s.logger.Error().Err(relErr).Msg("Failed to release slot after ledger error")
		}
		metrics.IncClaim("error")
		return nil, fmt.Errorf("record booking: %w", err)
	}

	metrics.IncClaim("accepted")
	s.logger.Info().
		Str("booking", b.ID).Str("branch", branch).Str("date", date).Str("time", tm).
		Int64("user", userID).Msg("Slot claimed")

	if err := s.bus.PublishJSON(events.TypeBookingConfirmed, payloadFor(b)); err != nil {
		s.logger.Error().Err(err).Str("booking", b.ID).Msg("Failed to publish confirmation event")
	}
	return b, nil
}

// Cancel removes the booking and its matching slot occupant. The slot side is
// best effort: an occupant already reaped with its slot is not an error.
func (s *Service) Cancel(ctx context.Context, bookingID string, userID int64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return database.ErrBookingNotFound
	}

	if _, err := s.store.DeleteBooking(ctx, bookingID); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if err := s.store.Release(ctx, b.Branch, b.Date, b.Time, userID); err != nil {
		s.logger.Warn().Err(err).Str("booking", bookingID).Msg("Slot occupant not released on cancel")
	}

	s.logger.Info().Str("booking", bookingID).Int64("user", userID).Msg("Booking cancelled")

	if err := s.bus.PublishJSON(events.TypeBookingCancelled, payloadFor(b)); err != nil {
		s.logger.Error().Err(err).Str("booking", bookingID).Msg("Failed to publish cancellation event")
	}
	return nil
}

// UserBookings lists the user's pending bookings from today on.
func (s *Service) UserBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	today := s.now().Format(models.DateLayout)
	return s.store.ListUserBookings(ctx, userID, today)
}

// UserMessage maps a claim/cancel error to the short client-facing text the
// conversational flow shows. Internal detail never leaks to the client.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrSlotTaken):
		return "⚠️ На это время уже записаны 2 человека. Выберите другое время."
	case errors.Is(err, database.ErrAlreadyClaimed):
		return "⚠️ Вы уже записаны на это время."
	case errors.Is(err, database.ErrSlotNotFound):
		return "⚠️ Это время больше недоступно. Выберите другое время."
	case errors.Is(err, database.ErrBookingNotFound):
		return "⚠️ Запись уже удалена или не найдена."
	default:
		return "Что-то пошло не так. Попробуйте позже."
	}
}

func payloadFor(b *models.Booking) notify.Payload {
	return notify.Payload{
		BookingID: b.ID,
		UserID:    b.UserID,
		Name:      b.Name,
		Phone:     b.Phone,
		Branch:    b.Branch,
		Date:      b.Date,
		Time:      b.Time,
	}
}
