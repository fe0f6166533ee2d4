package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

// CreateBooking appends a confirmed booking to the ledger. A missing ID gets
// a generated one; both notification flags start false.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, name, phone, branch, date, time,
			created_at, notified_day_before, notified_two_hours_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		b.ID, b.UserID, b.Name, b.Phone, b.Branch, b.Date, b.Time, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// GetBooking loads one booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, name, phone, branch, date, time,
		       created_at, notified_day_before, notified_two_hours_before
		FROM bookings WHERE id = ?`, id)

	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListBookings returns the whole ledger, oldest appointment first.
func (db *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, user_id, name, phone, branch, date, time,
		       created_at, notified_day_before, notified_two_hours_before
		FROM bookings ORDER BY date, time`)
}

// ListUnnotified24h returns bookings still waiting for the 24-hour reminder.
func (db *DB) ListUnnotified24h(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, user_id, name, phone, branch, date, time,
		       created_at, notified_day_before, notified_two_hours_before
		FROM bookings WHERE notified_day_before = 0 ORDER BY date, time`)
}

// ListUnnotified2h returns bookings still waiting for the 2-hour reminder.
func (db *DB) ListUnnotified2h(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, user_id, name, phone, branch, date, time,
		       created_at, notified_day_before, notified_two_hours_before
		FROM bookings WHERE notified_two_hours_before = 0 ORDER BY date, time`)
}

// ListUserBookings returns a user's bookings from the given date on,
// ordered by appointment.
func (db *DB) ListUserBookings(ctx context.Context, userID int64, fromDate string) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, user_id, name, phone, branch, date, time,
		       created_at, notified_day_before, notified_two_hours_before
		FROM bookings WHERE user_id = ? AND date >= ? ORDER BY date, time`,
		userID, fromDate)
}

// MarkNotified24h flips the day-before flag. The flag only ever moves to true.
func (db *DB) MarkNotified24h(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET notified_day_before = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notified 24h: %w", err)
	}
	return nil
}

// MarkNotified2h flips the two-hours flag. The flag only ever moves to true.
func (db *DB) MarkNotified2h(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET notified_two_hours_before = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notified 2h: %w", err)
	}
	return nil
}

// DeleteBooking removes one record. Returns false when the id was not present.
func (db *DB) DeleteBooking(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.Name, &b.Phone, &b.Branch, &b.Date, &b.Time,
		&b.CreatedAt, &b.Notified24h, &b.Notified2h,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
