package main

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/bookings"
)

func TestGetDayLabel(t *testing.T) {
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"today", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), "Today"},
		{"tomorrow", time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC), "Tomorrow"},
		{"yesterday", time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), "Yesterday"},
		{"later", time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC), "Thu, Apr 2 2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getDayLabel(tt.t, now); got != tt.want {
				t.Errorf("getDayLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Minute, "45m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1.5h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Main St", 10, "Main St"},
		{"1234 Long Street Name", 10, "1234 Lo..."},
		{"Zürich Hauptbahnhof", 10, "Zürich ..."},
		{"東京都千代田区丸の内", 10, "東京都千代田区丸の内"},
		{"東京都千代田区丸の内一丁目", 10, "東京都千代田区..."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) split a rune", tt.in, tt.max)
			}
		})
	}
}

func TestFormatAppointments(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	appts := []appointment.Appointment{
		{ID: "a", Title: "Dentist", DateTime: now.Add(time.Hour), DurationMinutes: 60},
		{ID: "b", Title: "Call", DateTime: now.Add(90 * time.Minute), DurationMinutes: 30, Location: "https://zoom.us/j/1", MeetingURL: "https://zoom.us/j/1"},
		{ID: "c", Title: "Lunch", DateTime: now.Add(28 * time.Hour), DurationMinutes: 60},
	}
	snap := bookings.Snapshot{
		Overlaps: appointment.DetectOverlaps(appts),
		Pairs:    appointment.OverlapPairs(appts),
		Dropped:  1,
	}

	lines := formatAppointments(appts, snap, now)
	out := strings.Join(lines, "\n")

	for _, want := range []string{
		"━━━━ Today ━━━━",
		"⚠ 09:00-10:00  Dentist (1h)  [a]  overlaps b",
		"⚠ 09:30-10:00  Call (30m)  [b]  🔗 Zoom  overlaps a",
		"━━━━ Tomorrow ━━━━",
		"  12:00-13:00  Lunch (1h)  [c]",
		"1 malformed record(s) skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
