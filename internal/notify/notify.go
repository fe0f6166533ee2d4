// Package notify delivers booking notifications. Delivery is fire-and-forget
// from the core's perspective: failures are logged by callers, never retried.
package notify

import "context"

type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingCancelled Kind = "booking_cancelled"
	KindReminder24h      Kind = "reminder_24h"
	KindReminder2h       Kind = "reminder_2h"
)

// Payload carries everything a sink needs to render a notification.
type Payload struct {
	BookingID string `json:"booking_id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Branch    string `json:"branch"`
	Date      string `json:"date"` // storage layout
	Time      string `json:"time"`
}

// Sink is an outbound notification channel.
type Sink interface {
	Deliver(ctx context.Context, kind Kind, p Payload) error
}

// Multi fans one notification out to several sinks. Each sink gets its
// attempt regardless of the others failing; the first error is returned for
// the caller's log line.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, kind Kind, p Payload) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Deliver(ctx, kind, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
