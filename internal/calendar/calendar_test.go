package calendar

import (
	"testing"
	"time"
)

func TestFormattersUseTheTimestampLocation(t *testing.T) {
	lisbon := time.FixedZone("WEST", 3600)
	moment := time.Date(2024, time.March, 3, 23, 30, 5, 42*int(time.Millisecond), time.UTC).In(lisbon)

	if got := FormatDate(moment); got != "2024-03-04" {
		t.Fatalf("unexpected date %q", got)
	}
	if got := FormatTime(moment); got != "00:30:05" {
		t.Fatalf("unexpected time %q", got)
	}
	if got := WeekdayPT(moment); got != "Segunda-feira" {
		t.Fatalf("unexpected weekday %q", got)
	}
	if got := FormatISO(moment); got != "2024-03-03T23:30:05.042Z" {
		t.Fatalf("unexpected iso timestamp %q", got)
	}
}

func TestWeekdayPTCoversTheWeek(t *testing.T) {
	expected := []string{"Domingo", "Segunda-feira", "Terça-feira", "Quarta-feira", "Quinta-feira", "Sexta-feira", "Sábado"}
	sunday := time.Date(2024, time.June, 2, 12, 0, 0, 0, time.UTC)
	for offset, name := range expected {
		if got := WeekdayPT(sunday.AddDate(0, 0, offset)); got != name {
			t.Fatalf("day %d: expected %q, got %q", offset, name, got)
		}
	}
}

func TestDayBoundaries(t *testing.T) {
	moment := time.Date(2024, time.May, 10, 14, 22, 1, 0, time.UTC)

	start := StartOfDay(moment)
	if !start.Equal(time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start of day %s", start)
	}
	end := EndOfDay(moment)
	if !end.Equal(time.Date(2024, time.May, 10, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("unexpected end of day %s", end)
	}
}

func TestParseDate(t *testing.T) {
	zone := time.FixedZone("BRT", -3*3600)
	parsed, err := ParseDate("2024-01-31", zone)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, offset := parsed.Zone(); offset != -3*3600 || parsed.Hour() != 0 || parsed.Day() != 31 {
		t.Fatalf("unexpected parsed date %s", parsed)
	}
	if _, err := ParseDate("31/01/2024", zone); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestParseISORoundTrip(t *testing.T) {
	moment := time.Date(2024, time.July, 1, 8, 0, 0, 125*int(time.Millisecond), time.UTC)
	parsed, err := ParseISO(FormatISO(moment))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !parsed.Equal(moment) {
		t.Fatalf("expected %s, got %s", moment, parsed)
	}
}
