package models

import "time"

// SlotCapacity is the number of clients one slot can hold.
// Business rule confirmed by the branch owners; not derived from the feed.
const SlotCapacity = 2

// Occupant is one client bound to a slot.
type Occupant struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

// Slot is a bookable unit of one branch at one date and hour.
type Slot struct {
	Branch    string     `json:"branch"`
	Date      string     `json:"date"` // ISO date, see DateLayout
	Time      string     `json:"time"` // HH:MM, see TimeLayout
	Occupants []Occupant `json:"occupants"`
}

// HasUser reports whether the given user already occupies the slot. Claim
// relies on it to tell a repeat claim apart from a full slot.
func (s *Slot) HasUser(userID int64) bool {
	for _, o := range s.Occupants {
		if o.UserID == userID {
			return true
		}
	}
	return false
}

// Booking is a confirmed reservation, a denormalized copy of a successful claim.
// The two notification flags are monotonic: once true they are never reset,
// the whole record is deleted instead.
type Booking struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Branch      string    `json:"branch"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
	Notified24h bool      `json:"notified_day_before"`
	Notified2h  bool      `json:"notified_two_hours_before"`
}

// StartTime returns the appointment's wall-clock start in the given location.
func (b *Booking) StartTime(loc *time.Location) (time.Time, error) {
	return SlotDateTime(b.Date, b.Time, loc)
}
