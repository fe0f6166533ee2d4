package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Storage layouts. All dates and times are persisted as text in these forms,
// the multi-format parser below is applied only at the feed/user boundary.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// dateLayouts is the ordered list of accepted textual date formats.
// US-style first: that is what the staff spreadsheet produces.
var dateLayouts = []string{
	"01/02/2006",
	"01/02/06",
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
}

// serialOrigin is the spreadsheet epoch (day 0 of the numeric date serial).
var serialOrigin = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate recognises a calendar date in any of the accepted textual formats,
// falling back to a spreadsheet numeric serial. The result carries only the
// date component (midnight UTC). Unparsable input yields an error; callers in
// per-row loops skip the row rather than abort the pass.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return serialOrigin.AddDate(0, 0, int(num)), nil
	}

	return time.Time{}, fmt.Errorf("unsupported date format: %q", s)
}

// SlotDateTime combines a stored date and time into a wall-clock moment.
func SlotDateTime(date, tm string, loc *time.Location) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	t, err := time.Parse(TimeLayout, tm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", tm, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// WeekBounds returns the Monday and Sunday (date-truncated) of the week
// containing the given moment.
func WeekBounds(now time.Time) (start, end time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	start = day.AddDate(0, 0, -(weekday - 1))
	end = start.AddDate(0, 0, 6)
	return start, end
}

// InWeek reports whether the date falls within [start, end] by calendar day.
func InWeek(date, start, end time.Time) bool {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, start.Location())
	return !d.Before(start) && !d.After(end)
}

// HourlyTimes generates the working-hours slot grid, one entry per hour from
// openHour through closeHour inclusive.
func HourlyTimes(openHour, closeHour int) []string {
	var times []string
	for h := openHour; h <= closeHour; h++ {
		times = append(times, fmt.Sprintf("%02d:00", h))
	}
	return times
}

// StartOfHour truncates a moment to the top of its hour.
func StartOfHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
