package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

// InsertSlotIfAbsent creates a slot row unless it already exists. Existing
// rows keep their occupants untouched, which makes weekly re-syncs idempotent.
// Returns true when a new row was created.
func (db *DB) InsertSlotIfAbsent(ctx context.Context, branch, date, tm string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO slots (branch, date, time) VALUES (?, ?, ?)`,
		branch, date, tm,
	)
	if err != nil {
		return false, fmt.Errorf("insert slot: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Claim atomically binds an occupant to the slot. It is a single conditional
// insert: the row lands only while the slot exists and its occupant count is
// still below capacity, which closes the check-then-insert race between
// concurrent claims on the same key.
func (db *DB) Claim(ctx context.Context, branch, date, tm string, occ models.Occupant, capacity int) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO slot_occupants (branch, date, time, user_id, name, phone)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM slots WHERE branch = ? AND date = ? AND time = ?)
		  AND (SELECT COUNT(*) FROM slot_occupants WHERE branch = ? AND date = ? AND time = ?) < ?`,
		branch, date, tm, occ.UserID, occ.Name, occ.Phone,
		branch, date, tm,
		branch, date, tm, capacity,
	)
	if err != nil {
		// The same user claiming the same slot twice trips the unique index.
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("claim slot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	slot, err := db.GetSlot(ctx, branch, date, tm)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	switch {
	case slot == nil:
		return ErrSlotNotFound
	case slot.HasUser(occ.UserID):
		return ErrAlreadyClaimed
	default:
		return ErrSlotTaken
	}
}

// Release removes the user's occupant from the slot. Removing an absent
// occupant, or an occupant of an already-reaped slot, is a no-op.
func (db *DB) Release(ctx context.Context, branch, date, tm string, userID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM slot_occupants WHERE branch = ? AND date = ? AND time = ? AND user_id = ?`,
		branch, date, tm, userID,
	)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// ListOpenSlots returns the times of the branch's slots on the given date that
// are below capacity, not already started relative to now (hour-granularity
// cutoff) and, when excludingUser is non-zero, not already claimed by that user.
func (db *DB) ListOpenSlots(ctx context.Context, branch, date string, excludingUser int64, capacity int, now time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.time, COUNT(o.id),
		       SUM(CASE WHEN o.user_id = ? THEN 1 ELSE 0 END)
		FROM slots s
		LEFT JOIN slot_occupants o
			ON o.branch = s.branch AND o.date = s.date AND o.time = s.time
		WHERE s.branch = ? AND s.date = ?
		GROUP BY s.time
		ORDER BY s.time`,
		excludingUser, branch, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	defer rows.Close()

	today := now.Format(models.DateLayout)
	if date < today {
		return nil, rows.Err()
	}

	var times []string
	for rows.Next() {
		var tm string
		var occupied int
		var mine sql.NullInt64
		if err := rows.Scan(&tm, &occupied, &mine); err != nil {
			return nil, err
		}
		if occupied >= capacity {
			continue
		}
		if excludingUser != 0 && mine.Int64 > 0 {
			continue
		}
		if date == today {
			slotTime, err := time.Parse(models.TimeLayout, tm)
			if err != nil {
				db.logger.Warn().Str("time", tm).Msg("Skipping slot with malformed time")
				continue
			}
			if slotTime.Hour() <= now.Hour() {
				continue
			}
		}
		times = append(times, tm)
	}
	return times, rows.Err()
}

// GetSlot loads one slot with its occupants. Returns nil when the slot row
// does not exist.
func (db *DB) GetSlot(ctx context.Context, branch, date, tm string) (*models.Slot, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE branch = ? AND date = ? AND time = ?`,
		branch, date, tm,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	slot := &models.Slot{Branch: branch, Date: date, Time: tm}
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, name, phone FROM slot_occupants
		 WHERE branch = ? AND date = ? AND time = ? ORDER BY id`,
		branch, date, tm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Occupant
		if err := rows.Scan(&o.UserID, &o.Name, &o.Phone); err != nil {
			return nil, err
		}
		slot.Occupants = append(slot.Occupants, o)
	}
	return slot, rows.Err()
}

// DeleteExpiredSlots removes slots (and their occupants) whose start is at or
// before now. ISO dates and HH:MM times compare correctly as text.
func (db *DB) DeleteExpiredSlots(ctx context.Context, now time.Time) (int64, error) {
	nowDate := now.Format(models.DateLayout)
	nowTime := now.Format(models.TimeLayout)

	if _, err := db.ExecContext(ctx,
		`DELETE FROM slot_occupants WHERE date < ? OR (date = ? AND time <= ?)`,
		nowDate, nowDate, nowTime,
	); err != nil {
		return 0, fmt.Errorf("delete expired occupants: %w", err)
	}

	res, err := db.ExecContext(ctx,
		`DELETE FROM slots WHERE date < ? OR (date = ? AND time <= ?)`,
		nowDate, nowDate, nowTime,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired slots: %w", err)
	}
	return res.RowsAffected()
}

// CountSlots reports the number of slot rows, used by the synchronizer log line.
func (db *DB) CountSlots(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slots`).Scan(&n)
	return n, err
}
