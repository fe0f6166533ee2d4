// Package schedule mirrors the staff availability spreadsheet into the local
// slot table, once at startup and again whenever the feed's week advances.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/metrics"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/sheets"
)

// SlotStore is the write surface the synchronizer needs.
type SlotStore interface {
	InsertSlotIfAbsent(ctx context.Context, branch, date, tm string) (bool, error)
	CountSlots(ctx context.Context) (int, error)
}

type Synchronizer struct {
	feed      sheets.Feed
	store     SlotStore
	openHour  int
	closeHour int
	loc       *time.Location
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewSynchronizer(feed sheets.Feed, store SlotStore, openHour, closeHour int, loc *time.Location, logger *zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		feed:      feed,
		store:     store,
		openHour:  openHour,
		closeHour: closeHour,
		loc:       loc,
		logger:    logger,
		now:       func() time.Time { return time.Now().In(loc) },
	}
}

// SyncWeek ensures a slot row exists for every active branch, day of the
// current week and working hour. Inserts are insert-if-absent only: existing
// slots keep their occupants, removed slots of past hours are not revived for
// today. A feed failure aborts the whole run without touching local state.
func (s *Synchronizer) SyncWeek(ctx context.Context) error {
	branches, err := s.feed.ActiveBranches(ctx)
	if err != nil {
		metrics.IncSyncRun("failed")
		return fmt.Errorf("sync week: %w", err)
	}

	now := s.now()
	weekStart, _ := models.WeekBounds(now)
	times := models.HourlyTimes(s.openHour, s.closeHour)

	created := 0
	for i := 0; i < 7; i++ {
		day := weekStart.AddDate(0, 0, i)
		date := day.Format(models.DateLayout)
		sameDay := day.Year() == now.Year() && day.YearDay() == now.YearDay()

		for _, branch := range branches {
			for _, tm := range times {
				if sameDay {
					slotTime, err := time.Parse(models.TimeLayout, tm)
					if err != nil {
						continue
					}
					if slotTime.Hour() <= now.Hour() {
						continue
					}
				}

				inserted, err := s.store.InsertSlotIfAbsent(ctx, branch, date, tm)
				if err != nil {
					// One bad row must not abort the rest of the run.
					s.logger.Error().Err(err).
						Str("branch", branch).Str("date", date).Str("time", tm).
						Msg("Failed to insert slot")
					continue
				}
				if inserted {
					created++
				}
			}
		}
	}

	total, err := s.store.CountSlots(ctx)
	if err != nil {
		total = -1
	}
	metrics.IncSyncRun("success")
	s.logger.Info().
		Int("branches", len(branches)).
		Int("created", created).
		Int("total_slots", total).
		Msg("Week schedule synchronized")
	return nil
}

// CheckWeek re-syncs when the feed's week no longer matches the local one.
func (s *Synchronizer) CheckWeek(ctx context.Context) error {
	same, err := s.feed.SameWeek(ctx, s.now())
	if err != nil {
		return fmt.Errorf("check week: %w", err)
	}
	if same {
		s.logger.Debug().Msg("Feed week unchanged, skipping sync")
		return nil
	}
	s.logger.Info().Msg("Feed week advanced, rebuilding schedule")
	return s.SyncWeek(ctx)
}

// Start runs the initial sync, then checks the feed's week once a day shortly
// after midnight. Failed runs are logged and retried on the next trigger.
func (s *Synchronizer) Start(ctx context.Context) {
	if err := s.SyncWeek(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial schedule sync failed")
	}

	go func() {
		timer := time.NewTimer(timeUntilNextMidnight(s.now()))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := s.CheckWeek(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Daily week check failed")
				}
				timer.Reset(24 * time.Hour)
			}
		}
	}()
}

func timeUntilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
