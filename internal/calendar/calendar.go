// Package calendar formats feedback timestamps the way the kiosk displays them.
package calendar

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
	isoLayout  = "2006-01-02T15:04:05.000Z"
)

var weekdaysPT = [...]string{
	"Domingo",
	"Segunda-feira",
	"Terça-feira",
	"Quarta-feira",
	"Quinta-feira",
	"Sexta-feira",
	"Sábado",
}

// FormatDate returns YYYY-MM-DD in the location carried by t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTime returns HH:MM:SS in the location carried by t.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// WeekdayPT returns the Portuguese weekday name for t.
func WeekdayPT(t time.Time) string {
	return weekdaysPT[t.Weekday()]
}

// FormatISO returns the UTC timestamp with millisecond precision, e.g. 2024-05-01T09:30:00.123Z.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO accepts any RFC 3339 timestamp, including the millisecond form FormatISO emits.
func ParseISO(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	parsed, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date %q: %w", value, err)
	}
	return parsed, nil
}
