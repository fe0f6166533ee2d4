// Package scheduler runs the periodic reminder and reaper sweep over the
// booking ledger and the slot table.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/metrics"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/notify"
)

// Reminder windows. A reminder is only ever sent inside its window; a window
// the tick cadence skipped over still advances the flag so the record is not
// re-evaluated forever, but no stale reminder goes out.
const (
	reminder24hMin    = 24 * time.Hour
	reminder24hMax    = 24*time.Hour + 18*time.Minute // 24.3h
	reminder24hMissed = 23*time.Hour + 30*time.Minute

	reminder2hTarget    = 2 * time.Hour
	reminder2hTolerance = 5 * time.Minute

	// A booking counts as consumed within the first minutes of its hour.
	bookingGrace = 5 * time.Minute
)

// BookingLedger is the sweep's view of the bookings table.
type BookingLedger interface {
	ListUnnotified24h(ctx context.Context) ([]models.Booking, error)
	ListUnnotified2h(ctx context.Context) ([]models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
	MarkNotified24h(ctx context.Context, id string) error
	MarkNotified2h(ctx context.Context, id string) error
	DeleteBooking(ctx context.Context, id string) (bool, error)
}

// SlotStore is the sweep's view of the slot table.
type SlotStore interface {
	DeleteExpiredSlots(ctx context.Context, now time.Time) (int64, error)
}

// Sweep scans all pending bookings on every tick, emits due reminders and
// garbage-collects expired slots and consumed bookings.
type Sweep struct {
	bookings BookingLedger
	slots    SlotStore
	sink     notify.Sink
	interval time.Duration
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewSweep(bookings BookingLedger, slots SlotStore, sink notify.Sink, interval time.Duration, loc *time.Location, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		bookings: bookings,
		slots:    slots,
		sink:     sink,
		interval: interval,
		loc:      loc,
		logger:   logger,
		now:      func() time.Time { return time.Now().In(loc) },
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweep) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("Sweep started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweep stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs the four passes of one sweep. Passes are independent: a
// failure in one is logged and does not abort the others.
func (s *Sweep) Tick(ctx context.Context) {
	start := time.Now()
	now := s.now()

	s.remind24h(ctx, now)
	s.remind2h(ctx, now)
	s.reapBookings(ctx, now)
	s.reapSlots(ctx, now)

	metrics.ObserveSweepDuration(time.Since(start).Seconds())
}

// remind24h handles bookings a day away. Diff inside [24.0, 24.3] hours sends
// and marks; diff below 23.5 hours means the window was skipped, so the flag
// advances without a send. Anything between, or further out, waits.
func (s *Sweep) remind24h(ctx context.Context, now time.Time) {
	bookings, err := s.bookings.ListUnnotified24h(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("24h pass: list bookings")
		return
	}

	for i := range bookings {
		b := &bookings[i]
		start, err := b.StartTime(s.loc)
		if err != nil {
			s.logger.Error().Err(err).Str("booking", b.ID).Msg("24h pass: malformed date")
			continue
		}

		diff := start.Sub(now)
		switch {
		case diff >= reminder24hMin && diff <= reminder24hMax:
			if err := s.sink.Deliver(ctx, notify.KindReminder24h, payloadFor(b)); err != nil {
				// Flag still advances: never double-notify outranks delivery.
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("24h reminder delivery failed")
			} else {
				metrics.IncReminderSent("24h")
				s.logger.Info().Str("booking", b.ID).Dur("diff", diff).Msg("24h reminder sent")
			}
			if err := s.bookings.MarkNotified24h(ctx, b.ID); err != nil {
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("24h pass: mark notified")
			}

		case diff < reminder24hMissed:
			if err := s.bookings.MarkNotified24h(ctx, b.ID); err != nil {
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("24h pass: mark missed")
				continue
			}
			metrics.IncReminderMissed("24h")
			s.logger.Info().Str("booking", b.ID).Dur("diff", diff).Msg("24h window missed, flag set")
		}
	}
}

// remind2h handles bookings two hours away with a ±5 minute tolerance around
// the target moment.
func (s *Sweep) remind2h(ctx context.Context, now time.Time) {
	bookings, err := s.bookings.ListUnnotified2h(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("2h pass: list bookings")
		return
	}

	for i := range bookings {
		b := &bookings[i]
		start, err := b.StartTime(s.loc)
		if err != nil {
			s.logger.Error().Err(err).Str("booking", b.ID).Msg("2h pass: malformed date")
			continue
		}

		target := start.Add(-reminder2hTarget)
		switch {
		case !now.Before(target.Add(-reminder2hTolerance)) && !now.After(target.Add(reminder2hTolerance)):
			if err := s.sink.Deliver(ctx, notify.KindReminder2h, payloadFor(b)); err != nil {
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("2h reminder delivery failed")
			} else {
				metrics.IncReminderSent("2h")
				s.logger.Info().Str("booking", b.ID).Msg("2h reminder sent")
			}
			if err := s.bookings.MarkNotified2h(ctx, b.ID); err != nil {
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("2h pass: mark notified")
			}

		case now.After(target.Add(reminder2hTolerance)):
			if err := s.bookings.MarkNotified2h(ctx, b.ID); err != nil {
				s.logger.Error().Err(err).Str("booking", b.ID).Msg("2h pass: mark missed")
				continue
			}
			metrics.IncReminderMissed("2h")
			s.logger.Info().Str("booking", b.ID).Msg("2h window missed, flag set")
		}
	}
}

// reapBookings deletes bookings whose appointment falls inside
// [start_of_current_hour, start_of_current_hour + grace): once its hour has
// begun the booking is consumed.
func (s *Sweep) reapBookings(ctx context.Context, now time.Time) {
	bookings, err := s.bookings.ListBookings(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Booking reaper: list bookings")
		return
	}

	hourStart := models.StartOfHour(now)
	hourEnd := hourStart.Add(bookingGrace)

	for i := range bookings {
		b := &bookings[i]
		start, err := b.StartTime(s.loc)
		if err != nil {
			s.logger.Error().Err(err).Str("booking", b.ID).Msg("Booking reaper: malformed date")
			continue
		}
		if start.Before(hourStart) || !start.Before(hourEnd) {
			continue
		}
		if _, err := s.bookings.DeleteBooking(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Str("booking", b.ID).Msg("Booking reaper: delete")
			continue
		}
		metrics.AddReaped("bookings", 1)
		s.logger.Info().Str("booking", b.ID).Msg("Consumed booking removed")
	}
}

// reapSlots removes slots whose start is at or before now, regardless of the
// ledger's state.
func (s *Sweep) reapSlots(ctx context.Context, now time.Time) {
	n, err := s.slots.DeleteExpiredSlots(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Slot reaper failed")
		return
	}
	if n > 0 {
		metrics.AddReaped("slots", float64(n))
		s.logger.Info().Int64("count", n).Msg("Expired slots removed")
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
